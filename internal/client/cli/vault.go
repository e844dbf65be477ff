package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/keepotp/internal/common"
)

func (a *App) importVault(ctx context.Context) {

	path, err := GetSimpleText(a.reader, "Path to the database file", a.out)
	if err != nil {
		fmt.Fprintf(a.out, "error: %v\n", err)
		return
	}

	keyFile, err := GetSimpleText(a.reader, "Path to the key file (empty for none)", a.out)
	if err != nil {
		fmt.Fprintf(a.out, "error: %v\n", err)
		return
	}

	name, err := GetSimpleText(a.reader, "Vault name (empty to use the file name)", a.out)
	if err != nil {
		fmt.Fprintf(a.out, "error: %v\n", err)
		return
	}

	snapshotAnswer, err := GetSimpleText(a.reader, "Keep an encrypted snapshot on the server? (y/N)", a.out)
	if err != nil {
		fmt.Fprintf(a.out, "error: %v\n", err)
		return
	}
	snapshot := strings.EqualFold(snapshotAnswer, "y")

	password, err := GetPassword(a.out)
	if err != nil {
		fmt.Fprintf(a.out, "error: %v\n", err)
		return
	}
	defer common.WipeByteArray(password)

	result, err := a.api.ImportVault(ctx, name, path, keyFile, password, snapshot)
	if err != nil {
		fmt.Fprintf(a.out, "Import unsuccessful: %v\n", err)
		return
	}

	fmt.Fprintf(a.out, "Imported %d of %d entries (vault %s)\n",
		result.Imported, result.TotalEntries, result.VaultID)
	for _, s := range result.Skipped {
		fmt.Fprintf(a.out, "  skipped %s: %s\n", s.Entry, s.Reason)
	}
}

func (a *App) listVaults(ctx context.Context) {
	vaults, err := a.api.ListVaults(ctx)
	if err != nil {
		fmt.Fprintf(a.out, "error: %v\n", err)
		return
	}
	if len(vaults) == 0 {
		fmt.Fprintln(a.out, "No vaults imported yet.")
		return
	}
	for _, v := range vaults {
		snapshot := ""
		if v.HasSnapshot {
			snapshot = " [snapshot]"
		}
		fmt.Fprintf(a.out, "%s  %s  %d entries%s\n", v.ID, v.Name, v.EntryCount, snapshot)
	}
}

func (a *App) deleteVault(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(a.out, "Usage: delete <vault-id>")
		return
	}
	if err := a.api.DeleteVault(ctx, args[0]); err != nil {
		fmt.Fprintf(a.out, "error: %v\n", err)
		return
	}
	fmt.Fprintln(a.out, "Vault deleted.")
}

func (a *App) snapshotURL(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(a.out, "Usage: snapshot <vault-id>")
		return
	}
	url, err := a.api.SnapshotURL(ctx, args[0])
	if err != nil {
		fmt.Fprintf(a.out, "error: %v\n", err)
		return
	}
	fmt.Fprintln(a.out, url)
}
