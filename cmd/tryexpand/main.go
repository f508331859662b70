package main

import "github.com/dangazineu/tryexpand/cmd/tryexpand/internal"

func main() {
	internal.Execute()
}
