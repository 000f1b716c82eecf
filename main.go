package main

import "github.com/vibast-solutions/ms-go-rent-payments/cmd"

func main() {
	cmd.Execute()
}
