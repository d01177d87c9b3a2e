package main

import (
	"fmt"

	"github.com/sanity-io/litter"

	"github.com/kevinxiao27/reg-walker/eg"
	"github.com/kevinxiao27/reg-walker/ol"
)

func main() {
	litter.Config.HidePrivateFields = false

	oplog1 := ol.NewOpLog[rune]()
	oplog2 := ol.NewOpLog[rune]()
	ol.LocalInsert(oplog1, "a", 0, []rune("hi")...)
	ol.LocalInsert(oplog2, "z", 0, []rune("yoooo")...)

	if err := ol.MergeInto(oplog1, oplog2); err != nil {
		panic(err)
	}
	if err := ol.MergeInto(oplog2, oplog1); err != nil {
		panic(err)
	}

	litter.Dump(oplog1.CG)

	result1, err := eg.CheckoutSimple(oplog1)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Result: %v → '%s'\n", result1, string(result1))

	result2, err := eg.CheckoutSimple(oplog2)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Result: %v → '%s'\n", result2, string(result2))

	if string(result1) == string(result2) {
		fmt.Println("Peers converged")
	} else {
		fmt.Println("Peers diverged!")
	}
}
