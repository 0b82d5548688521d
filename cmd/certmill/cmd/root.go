package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/quaypoint/certmill/dhparam"
	"github.com/quaypoint/certmill/internal/logger"
	"github.com/quaypoint/certmill/pipeline"
	"github.com/quaypoint/certmill/pki"
)

var (
	storeDir string
	logLevel string

	force   bool
	org     string
	service string
	domain  string
	days    int
	caDays  int
	keyBits int
	dhBits  int
)

var rootCmd = &cobra.Command{
	Use:   "certmill",
	Short: "CertMill bootstraps a private CA and issues mutual TLS certificates",
	Long: `CertMill generates everything a service and its clients need for mutual
TLS in one run: a self-signed root CA, a server certificate carrying the
subject alternative names the service answers to, a client certificate
and fresh Diffie-Hellman parameters. Private keys are written with
owner-only permissions and both chains are verified before the tool
reports success.

Running certmill with no arguments generates into ./tls. An existing
complete set is left untouched unless --force is given.`,
	Version:      Version,
	SilenceUsage: true,
	RunE:         runGenerate,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storeDir, "dir", pipeline.DefaultDir, "Directory for generated artifacts")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error, disabled)")

	rootCmd.Flags().BoolVarP(&force, "force", "f", false, "Regenerate even when a complete set already exists")
	rootCmd.Flags().StringVar(&org, "org", pipeline.DefaultOrganization, "Subject organization")
	rootCmd.Flags().StringVar(&service, "service", pipeline.DefaultService, "Service name, the server answers as <service>.<domain>")
	rootCmd.Flags().StringVar(&domain, "domain", pipeline.DefaultDomain, "Domain the service lives in")
	rootCmd.Flags().IntVar(&days, "days", pki.DefaultLeafValidityDays, "Leaf certificate validity in days")
	rootCmd.Flags().IntVar(&caDays, "ca-days", pki.DefaultCAValidityDays, "CA certificate validity in days")
	rootCmd.Flags().IntVar(&keyBits, "key-bits", pki.DefaultKeyBits, "RSA key size in bits")
	rootCmd.Flags().IntVar(&dhBits, "dh-bits", dhparam.DefaultBits, "DH parameter size in bits")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if err := logger.SetLogLevel(logLevel); err != nil {
		return err
	}

	printBanner()

	cfg := pipeline.Config{
		Dir:              storeDir,
		Force:            force,
		DN:               pki.DistinguishedName{Organization: org},
		Service:          service,
		Domain:           domain,
		LeafValidityDays: days,
		CAValidityDays:   caDays,
		KeyBits:          keyBits,
		DHBits:           dhBits,
	}

	p := pipeline.New(cfg, logger.NewPretty("pipeline"))
	report, err := p.Run(cmd.Context())
	if report != nil {
		renderReport(cmd.OutOrStdout(), report)
	}
	return err
}

func renderReport(out io.Writer, r *pipeline.Report) {
	switch r.Outcome {
	case pipeline.OutcomeExistingUnchanged:
		fmt.Fprintf(out, "Existing artifacts in %s left untouched. Use --force to regenerate.\n\n", r.StoreDir)
	case pipeline.OutcomeFailure:
		fmt.Fprintln(out, "Verification FAILED, do not deploy these artifacts:")
		for _, f := range r.Failures {
			fmt.Fprintf(out, "  %s certificate: %s (%s)\n", f.Leaf, f.Reason, f.Detail)
		}
		fmt.Fprintln(out)
	default:
		fmt.Fprintf(out, "Certificate set written to %s.\n\n", r.StoreDir)
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Certificate", "Subject", "Serial", "Expires", "Fingerprint"})
	for _, row := range []struct {
		name string
		sum  *pki.Summary
	}{
		{"ca", r.CA},
		{"server", r.Server},
		{"client", r.Client},
	} {
		if row.sum == nil {
			continue
		}
		table.Append([]string{
			row.name,
			row.sum.Subject,
			row.sum.SerialNumber,
			humanize.Time(row.sum.NotAfter),
			shortFingerprint(row.sum.FingerprintSHA256),
		})
	}
	table.Render()

	fmt.Fprintf(out, "\nDH parameters: %d bits\n\nFiles:\n", r.DHBits)
	for _, a := range r.Artifacts {
		fmt.Fprintf(out, "  %-22s %s\n", a.Role, a.Path)
	}
}

func shortFingerprint(fp string) string {
	if len(fp) > 16 {
		return fp[:16]
	}
	return fp
}
