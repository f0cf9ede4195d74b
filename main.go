// Command testintel ingests test reports and analyzes recorded test runs.
package main

import "github.com/kamilpajak/testintel/cmd/testintel"

func main() {
	testintel.Execute()
}
