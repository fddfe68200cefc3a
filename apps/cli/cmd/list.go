package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/conserve/packages/solver"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List equations, schemes, initial conditions and boundaries",
	Long: `List the names accepted by --equation, --scheme, --initial and --boundary.

Examples:
  conserve list`,
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipConfig: "true"},
	RunE:        listCommand,
}

var equationInfo = map[string]string{
	"advection": "f(u) = a*u, a = --speed",
	"burgers":   "f(u) = u^2/2",
}

var initialInfo = map[string]string{
	"constant": "u = 1",
	"gaussian": "u = exp(-4x^2)",
	"sine":     "u = sin(pi*x)",
	"square":   "u = 1 on [0, 1], 0 elsewhere",
	"step":     "u = 1 for x < 0, 0 elsewhere",
}

var boundaryInfo = map[string]string{
	"periodic":  "u wraps around the domain",
	"outflow":   "ghost cells copy the edge cell",
	"fixed:L,R": "ghost cells hold L on the left and R on the right",
}

func listCommand(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()

	eqs := newTable("Equations", "name", "flux")
	for _, name := range solver.EquationNames() {
		eqs.addRow(name, equationInfo[name])
	}

	schemes := newTable("Schemes", "name", "ghost cells")
	for _, name := range solver.SchemeNames() {
		s, err := solver.NewScheme(name)
		if err != nil {
			return err
		}
		schemes.addRow(name, strconv.Itoa(s.Stencil()))
	}

	initials := newTable("Initial conditions", "name", "u(x, 0)")
	for _, name := range solver.InitialNames() {
		initials.addRow(name, initialInfo[name])
	}

	boundaries := newTable("Boundaries", "name", "ghost cells")
	for _, name := range solver.BoundaryNames() {
		boundaries.addRow(name, boundaryInfo[name])
	}

	tables := []string{eqs.render(noColorFlag), schemes.render(noColorFlag), initials.render(noColorFlag), boundaries.render(noColorFlag)}
	fmt.Fprintln(w, strings.Join(tables, "\n"))
	return nil
}
