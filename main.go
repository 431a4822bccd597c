package main

import "github.com/BetaStreetOmnis/CoDeskTeam/cmd"

func main() {
	cmd.Execute()
}
