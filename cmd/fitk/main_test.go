package main

import (
	"strings"
	"testing"

	"github.com/matryer/is"

	"puzzle-rater/winprob"
)

func TestLoadSamples(t *testing.T) {
	is := is.New(t)
	in := "centipawns,result\n# comment\n150,1-0\n-80, 0-1\n0,1/2-1/2\n35,0.75\n"
	got, err := loadSamples(strings.NewReader(in), 0)
	is.NoErr(err)
	is.Equal(got, []winprob.Sample{
		{Centipawns: 150, Result: 1},
		{Centipawns: -80, Result: 0},
		{Centipawns: 0, Result: 0.5},
		{Centipawns: 35, Result: 0.75},
	})

	got, err = loadSamples(strings.NewReader(in), 2)
	is.NoErr(err)
	is.Equal(len(got), 2)

	_, err = loadSamples(strings.NewReader("10,1-0\nabc,0-1\n"), 0)
	is.True(err != nil)
	_, err = loadSamples(strings.NewReader("10,*\n"), 0)
	is.True(err != nil)
}
