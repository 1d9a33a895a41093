package main

import "github.com/JakeFAU/contact-harvester/cmd"

func main() {
	cmd.Execute()
}
