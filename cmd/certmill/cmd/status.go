package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/quaypoint/certmill/dhparam"
	"github.com/quaypoint/certmill/pki"
	"github.com/quaypoint/certmill/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show metadata for the artifacts in the store directory",
	Long: `Prints subject, serial, key size and expiry for every certificate in the
store directory, the DH parameter size, and the recorded issuance
history.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return renderStatus(cmd.OutOrStdout(), storeDir)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func renderStatus(out io.Writer, dir string) error {
	st := store.New(dir)

	presence, err := st.Presence()
	if err != nil {
		return err
	}
	if !presence.Any() {
		fmt.Fprintf(out, "No artifacts in %s.\n", st.Dir())
		return nil
	}

	fmt.Fprintf(out, "Store: %s\n\n", st.Dir())

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"File", "Status", "Subject", "Serial", "Key", "Expires"})
	for _, file := range []string{store.FileCACert, store.FileServerCert, store.FileClientCert} {
		pem, err := st.ReadPEM(file)
		if errors.Is(err, os.ErrNotExist) {
			table.Append([]string{file, "missing", "", "", "", ""})
			continue
		}
		if err != nil {
			return err
		}
		sum, err := pki.SummarizePEM(pem)
		if err != nil {
			table.Append([]string{file, "unreadable", "", "", "", ""})
			continue
		}
		table.Append([]string{
			file,
			sum.Status,
			sum.Subject,
			sum.SerialNumber,
			sum.KeyAlgorithm,
			humanize.Time(sum.NotAfter),
		})
	}
	table.Render()

	if pem, err := st.ReadPEM(store.FileDHParams); err == nil {
		if params, err := dhparam.ParsePEM(pem); err == nil {
			fmt.Fprintf(out, "\nDH parameters: %d bits\n", params.BitLen())
		} else {
			fmt.Fprintf(out, "\nDH parameters: unreadable (%v)\n", err)
		}
	}

	return renderIssuances(out, st)
}

func renderIssuances(out io.Writer, st *store.Store) error {
	if _, err := os.Stat(st.Path(store.FileState)); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	state, err := st.OpenState()
	if err != nil {
		if errors.Is(err, store.ErrStateLocked) {
			fmt.Fprintln(out, "\nIssuance history unavailable, another run holds the state lock.")
			return nil
		}
		return err
	}
	defer state.Close()

	records, err := state.Issuances()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	fmt.Fprintf(out, "\nIssuance history:\n")
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Issued", "Profile", "Common Name", "Serial", "Fingerprint", "Expires"})
	for _, rec := range records {
		table.Append([]string{
			humanize.Time(rec.IssuedAt),
			rec.Profile,
			rec.CommonName,
			rec.SerialNumber,
			shortFingerprint(rec.FingerprintSHA256),
			humanize.Time(rec.NotAfter),
		})
	}
	table.Render()
	return nil
}
