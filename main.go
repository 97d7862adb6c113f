package main

import "github.com/kasflow/payment-batch/cmd"

func main() {
	cmd.Execute()
}
