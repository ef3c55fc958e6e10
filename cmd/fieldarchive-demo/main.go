package main

import (
	"fmt"
	"os"

	"github.com/serialarch/fieldarchive/field"
	"github.com/serialarch/fieldarchive/metainfo"
	"github.com/serialarch/fieldarchive/savepoint"
	"github.com/serialarch/fieldarchive/serializer"
	"github.com/serialarch/fieldarchive/storageview"
)

func main() {
	dir := "./data"

	s, err := serializer.Open(dir, "field", serializer.Write)
	if err != nil {
		fmt.Println(err)
		return
	}

	temperature, err := field.New(metainfo.Float64, []int{2, 2}, nil)
	if err != nil {
		fmt.Println(err)
		return
	}
	if err := s.RegisterField("temperature", temperature); err != nil {
		fmt.Println(err)
		return
	}

	meta := metainfo.New()
	meta.Insert("step", metainfo.NewInt32(0))
	sp0 := savepoint.New("step-0", meta)

	view := storageview.NewFloat64View([]int{2, 2}, []float64{1, 2, 3, 4})
	if err := s.Write("temperature", sp0, view); err != nil {
		fmt.Println(err)
		return
	}

	meta1 := metainfo.New()
	meta1.Insert("step", metainfo.NewInt32(1))
	sp1 := savepoint.New("step-1", meta1)

	// Identical payload: deduplicates against step-0's stored copy rather
	// than writing a second one.
	if err := s.Write("temperature", sp1, view); err != nil {
		fmt.Println(err)
		return
	}

	if err := s.Close(); err != nil {
		fmt.Println(err)
		return
	}

	r, err := serializer.Open(dir, "field", serializer.Read)
	if err != nil {
		fmt.Println(err)
		return
	}
	defer r.Close()

	for _, sp := range r.Savepoints() {
		out := storageview.NewFloat64View([]int{2, 2}, nil)
		if err := r.Read("temperature", sp, out); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		fmt.Printf("%s: %v\n", sp.Name, out.Data)
	}
}
