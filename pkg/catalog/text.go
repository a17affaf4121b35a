package catalog

import (
	"bufio"
	"io"
)

// WriteCatalogText renders every action in registration order as
//
//	Action: <id>
//	Description: <description>
//	Parameters:
//	  - <name>: <typeId> (e.g. <first example>)
//
// Blocks are separated by a blank line. The example suffix is omitted when a
// parameter has no examples. The output is stable for a given catalog.
func WriteCatalogText(w io.Writer, c ActionCatalog) error {
	bw := bufio.NewWriter(w)
	for i, d := range c.ListDescriptors() {
		if i > 0 {
			_, _ = bw.WriteString("\n")
		}
		_, _ = bw.WriteString("Action: " + d.ID + "\n")
		_, _ = bw.WriteString("Description: " + d.Description + "\n")
		_, _ = bw.WriteString("Parameters:\n")
		for _, p := range d.Parameters {
			_, _ = bw.WriteString("  - " + p.Name + ": " + p.TypeID)
			if len(p.Examples) > 0 {
				_, _ = bw.WriteString(" (e.g. " + p.Examples[0] + ")")
			}
			_, _ = bw.WriteString("\n")
		}
	}
	return bw.Flush()
}
