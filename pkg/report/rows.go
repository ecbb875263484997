package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/srodi/procwalk/pkg/types"
)

// Roles a snapshot plays in an ancestry chain.
const (
	RoleSelf     = "self"
	RoleAncestor = "ancestor"
	RoleRoot     = "root"
)

// Row is one ancestry snapshot prepared for display.
type Row struct {
	Depth    int
	PID      int64
	Name     string
	State    string
	UID      string
	NVCSW    int64
	NIVCSW   int64
	Children int64
	Siblings int64
	Kernel   bool
	Role     string
}

// FilterConfig controls which ancestors appear in CLI tables.
type FilterConfig struct {
	HideKernel *bool // nil shows kernel threads; a chain is short enough to keep whole
}

func (cfg FilterConfig) hideKernelEnabled() bool {
	if cfg.HideKernel == nil {
		return false
	}
	return *cfg.HideKernel
}

// BuildRows turns walk output, self first, into display rows. The last
// snapshot is labeled root when it is PID 0.
func BuildRows(infos []types.ProcessInfo) []Row {
	rows := make([]Row, 0, len(infos))
	for i, info := range infos {
		row := Row{
			Depth:    i,
			PID:      info.PID,
			Name:     info.NameString(),
			State:    types.StateName(info.State),
			UID:      uidText(info.UID),
			NVCSW:    info.NVCSW,
			NIVCSW:   info.NIVCSW,
			Children: info.NumChildren,
			Siblings: info.NumSiblings,
			Role:     RoleAncestor,
		}
		row.Kernel = isKernelThread(row)
		switch {
		case i == 0:
			row.Role = RoleSelf
		case i == len(infos)-1 && info.PID == 0:
			row.Role = RoleRoot
		}
		rows = append(rows, row)
	}
	return rows
}

// FilterRows drops rows hidden by cfg. The self row always stays.
func FilterRows(rows []Row, cfg FilterConfig) []Row {
	filtered := make([]Row, 0, len(rows))
	for _, row := range rows {
		if row.Role != RoleSelf && cfg.hideKernelEnabled() && row.Kernel {
			continue
		}
		filtered = append(filtered, row)
	}
	return filtered
}

// Summary renders the chain on one line, e.g. "bash(812) <- sshd(700) <- systemd(1)".
func Summary(rows []Row) string {
	parts := make([]string, 0, len(rows))
	for _, row := range rows {
		parts = append(parts, fmt.Sprintf("%s(%d)", row.Name, row.PID))
	}
	return strings.Join(parts, " <- ")
}

// WriteTable prints rows as an aligned table.
func WriteTable(w io.Writer, rows []Row) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No ancestors matched current filters")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DEPTH\tPID\tNAME\tSTATE\tUID\tNVCSW\tNIVCSW\tCHILDREN\tSIBLINGS\tROLE")
	for _, row := range rows {
		role := row.Role
		if row.Kernel {
			role += " (kernel)"
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			row.Depth, row.PID, row.Name, row.State, row.UID, row.NVCSW, row.NIVCSW, row.Children, row.Siblings, role)
	}
	return tw.Flush()
}

// WriteStats prints the result of an array reduction.
func WriteStats(w io.Writer, stats types.ArrayStats) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MIN\tMAX\tSUM")
	fmt.Fprintf(tw, "%d\t%d\t%d\n", stats.Min, stats.Max, stats.Sum)
	return tw.Flush()
}

func uidText(uid int64) string {
	if uid == types.NoUID {
		return "-"
	}
	return strconv.FormatInt(uid, 10)
}

func isKernelThread(row Row) bool {
	if row.PID == 0 || row.PID == 2 {
		return true
	}
	name := strings.ToLower(row.Name)
	switch {
	case strings.HasPrefix(name, "kworker"), strings.HasPrefix(name, "ksoftirqd"), strings.HasPrefix(name, "kthreadd"),
		strings.HasPrefix(name, "migration"), strings.HasPrefix(name, "watchdog"), strings.HasPrefix(name, "rcu"),
		strings.HasPrefix(name, "irq/"), strings.HasPrefix(name, "swapper"):
		return true
	}
	return false
}
