// autosd — fleet operations control plane.
// Signed capability grants, policy-gated releases, automated patching
// and incident healing, with a tamper-evident audit trail.
package main

import "github.com/ppiankov/autosd/internal/cli"

func main() {
	cli.Execute()
}
