// Command conservation-parallel runs the default experiment matrix with all
// experiments in flight at once.
package main

import "github.com/abdul-hamid-achik/conserve/apps/cli/cmd"

func main() {
	cmd.ExecuteExample(cmd.NewExampleCommand("conservation-parallel", true))
}
