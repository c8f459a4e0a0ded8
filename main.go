package main

import "qtcross/internal/qtcross"

func main() {
	qtcross.Main()
}
