package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mzyy94/airsane/internal/sane"
	"github.com/mzyy94/airsane/internal/scanner"
)

var optionsCmd = &cobra.Command{
	Use:   "options [device]",
	Short: "Show the options of a scanner",
	Long: `Print every option the device exposes, grouped as the backend groups
them, with its current value and the values it accepts.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := openSANE()
		if err != nil {
			return err
		}
		defer ctx.Close()

		var name string
		if len(args) > 0 {
			name = args[0]
		}
		sc, err := connectScanner(cmd, ctx, name)
		if err != nil {
			return err
		}
		defer sc.Disconnect()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Options specific to device `%s':\n", sc.Device().Name)
		for _, opt := range sc.Options() {
			printOption(out, sc, opt)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(optionsCmd)
}

func printOption(w io.Writer, sc *scanner.Scanner, opt sane.Option) {
	if opt.Type == sane.TypeGroup {
		fmt.Fprintf(w, "  %s:\n", opt.Title)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "    --%s", opt.Name)
	if allowed := describeConstraint(opt); allowed != "" {
		fmt.Fprintf(&b, " %s", allowed)
	}
	if unit := opt.Unit.String(); unit != "" {
		fmt.Fprintf(&b, "%s", unit)
	}
	if opt.IsAutomatic() {
		b.WriteString("|auto")
	}

	switch {
	case !opt.IsActive():
		b.WriteString(" [inactive]")
	case opt.HasValue() && opt.IsDetectable():
		if v, err := sc.Get(opt.Name); err == nil {
			fmt.Fprintf(&b, " [%s]", scanner.FormatValue(v))
		}
	}
	if !opt.IsSettable() && opt.HasValue() {
		b.WriteString(" [read-only]")
	}
	fmt.Fprintln(w, b.String())
	if opt.Desc != "" {
		fmt.Fprintf(w, "        %s\n", opt.Desc)
	}
}

func describeConstraint(opt sane.Option) string {
	word := func(v int32) string {
		if opt.Type == sane.TypeFixed {
			return sane.Fixed(v).String()
		}
		return fmt.Sprint(v)
	}

	switch c := opt.Constraint.(type) {
	case sane.RangeConstraint:
		s := word(c.Min) + ".." + word(c.Max)
		if c.Quant != 0 {
			s += " (in steps of " + word(c.Quant) + ")"
		}
		return s
	case sane.WordListConstraint:
		parts := make([]string, len(c))
		for i, v := range c {
			parts[i] = word(v)
		}
		return strings.Join(parts, "|")
	case sane.StringListConstraint:
		return strings.Join(c, "|")
	}

	switch opt.Type {
	case sane.TypeBool:
		return "[=(yes|no)]"
	case sane.TypeInt:
		return "<int>"
	case sane.TypeFixed:
		return "<float>"
	case sane.TypeString:
		return "<string>"
	}
	return ""
}
