package cmd

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/voluzi/pagepulse/internal/config"
	"github.com/voluzi/pagepulse/pkg/audit"
)

var auditFromStart bool

var auditCmd = &cobra.Command{
	Use:   "audit [file]",
	Short: "Follows the audit log written by serve",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) > 0 {
			path = args[0]
		} else if cfg, _ := config.Load(configFile); cfg != nil {
			path = cfg.Audit.Path
		}
		if path == "" {
			return fmt.Errorf("no audit log configured")
		}
		return followAudit(path, auditFromStart, cmd.OutOrStdout())
	},
}

func init() {
	auditCmd.Flags().BoolVar(&auditFromStart, "from-start", false, "Print existing events before following")
}

func followAudit(path string, fromStart bool, out io.Writer) error {
	if fi, err := os.Stat(path); err == nil {
		log.WithFields(log.Fields{
			"path":     path,
			"size":     humanize.Bytes(uint64(fi.Size())),
			"modified": humanize.Time(fi.ModTime()),
		}).Info("following audit log")
	}

	f, err := audit.Follow(path, fromStart)
	if err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		if err := f.Stop(); err != nil {
			log.Errorf("error stopping audit follower: %v", err)
		}
	}()

	go f.Start()
	for rec := range f.Events {
		if rec.Err != nil {
			log.Warnf("skipping audit line: %v", rec.Err)
			continue
		}
		fmt.Fprintln(out, formatEvent(rec.Event))
	}
	return nil
}

func formatEvent(e audit.Event) string {
	status := "ok"
	if !e.OK {
		status = "FAIL"
	}
	b := strings.Builder{}
	fmt.Fprintf(&b, "%s %-5s %-8s %-4s %s", e.Time.Format("2006-01-02T15:04:05.000Z07:00"), e.Kind, e.Scope, status, e.Message)

	keys := make([]string, 0, len(e.Meta))
	for k := range e.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Meta[k])
	}
	if e.Error != "" {
		fmt.Fprintf(&b, " error=%q", e.Error)
	}
	return b.String()
}
