package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	evgrpc "github.com/dmitrijs2005/evidencekeeper/internal/server/grpc"
	"github.com/dmitrijs2005/evidencekeeper/internal/server/models"
	"github.com/dmitrijs2005/evidencekeeper/internal/vpath"
)

var (
	errNoOwner = errors.New("select a vault or case first")
	errNoVault = errors.New("select a vault first")
)

const defaultRecent = 20

func (a *App) call(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config == nil || a.config.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, a.config.RequestTimeout)
}

func (a *App) selectOwner(kind string, args []string) error {
	if len(args) != 1 {
		return usage(kind + " <id>")
	}
	a.owner = evgrpc.OwnerRef{Kind: kind, ID: args[0]}
	a.cwd = vpath.Root
	return nil
}

func (a *App) changeFolder(args []string) error {
	if len(args) != 1 {
		return usage("cd <path>")
	}
	p, err := a.resolve(args[0])
	if err != nil {
		return err
	}
	a.cwd = p
	return nil
}

// resolve turns a user path into folder form relative to the current folder.
func (a *App) resolve(arg string) (string, error) {
	if a.cwd == "" {
		a.cwd = vpath.Root
	}
	if arg == ".." {
		parent, _ := vpath.Split(a.cwd)
		return parent, nil
	}
	if !strings.HasPrefix(arg, vpath.Separator) {
		arg = a.cwd + arg
	}
	return vpath.Normalize(arg)
}

func (a *App) list(ctx context.Context, args []string) error {
	if a.owner.ID == "" {
		return errNoOwner
	}
	path := a.cwd
	if len(args) > 0 {
		p, err := a.resolve(args[0])
		if err != nil {
			return err
		}
		path = p
	}

	token := ""
	count := 0
	for {
		cctx, cancel := a.call(ctx)
		resp, err := a.api.ListFiles(cctx, &evgrpc.ListFilesRequest{Owner: a.owner, Path: path, PageToken: token})
		cancel()
		if err != nil {
			return err
		}
		for _, f := range resp.Files {
			a.printRow(f)
		}
		count += len(resp.Files)
		if resp.NextPageToken == "" {
			break
		}
		token = resp.NextPageToken
	}
	fmt.Fprintf(a.out, "%d item(s) in %s\n", count, path)
	return nil
}

func (a *App) recent(ctx context.Context, args []string) error {
	if a.owner.ID == "" {
		return errNoOwner
	}
	n := defaultRecent
	if len(args) > 0 {
		v, err := strconv.Atoi(args[0])
		if err != nil || v <= 0 {
			return usage("recent [n]")
		}
		n = v
	}

	cctx, cancel := a.call(ctx)
	defer cancel()
	resp, err := a.api.ListRecent(cctx, &evgrpc.ListRecentRequest{Owner: a.owner, PageSize: n})
	if err != nil {
		return err
	}
	for _, f := range resp.Files {
		a.printRow(f)
	}
	return nil
}

func (a *App) describe(ctx context.Context, args []string) error {
	if a.owner.ID == "" {
		return errNoOwner
	}
	if len(args) != 1 {
		return usage("describe <id>")
	}

	cctx, cancel := a.call(ctx)
	defer cancel()
	resp, err := a.api.DescribeFile(cctx, &evgrpc.DescribeFileRequest{Owner: a.owner, FileID: args[0]})
	if err != nil {
		return err
	}

	f := resp.File
	fmt.Fprintf(a.out, "ID:        %s\n", f.ID)
	fmt.Fprintf(a.out, "Path:      %s%s\n", f.Path, f.Name)
	if f.IsFolder {
		fmt.Fprintln(a.out, "Type:      folder")
		return nil
	}
	fmt.Fprintf(a.out, "Size:      %d\n", f.Size)
	fmt.Fprintf(a.out, "Type:      %s\n", f.ContentType)
	fmt.Fprintf(a.out, "SHA-256:   %s\n", f.ContentHash)
	if f.HoldStatus != "" {
		fmt.Fprintf(a.out, "Hold:      %s\n", f.HoldStatus)
	}
	if f.ExecutionID != "" {
		fmt.Fprintf(a.out, "Execution: %s\n", f.ExecutionID)
	}
	if f.SourceFileID != "" {
		fmt.Fprintf(a.out, "Source:    %s/%s\n", f.SourceVaultID, f.SourceFileID)
	}
	for _, sc := range f.ScopedCases {
		fmt.Fprintf(a.out, "Case:      %s (%s)\n", sc.CaseName, sc.CaseID)
	}
	fmt.Fprintf(a.out, "Created:   %s\n", f.CreatedAt.Format("2006-01-02 15:04:05"))
	return nil
}

func (a *App) downloadURL(ctx context.Context, args []string) error {
	if a.owner.ID == "" {
		return errNoOwner
	}
	if len(args) != 1 {
		return usage("url <id>")
	}

	cctx, cancel := a.call(ctx)
	defer cancel()
	resp, err := a.api.DownloadURL(cctx, &evgrpc.DownloadURLRequest{Owner: a.owner, FileID: args[0]})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, resp.URL)
	return nil
}

func (a *App) associate(ctx context.Context, args []string) error {
	vaultID, err := a.vault()
	if err != nil {
		return err
	}
	if len(args) != 2 {
		return usage("associate <file-id,...> <case-id,...>")
	}

	cctx, cancel := a.call(ctx)
	defer cancel()
	resp, err := a.api.Associate(cctx, &evgrpc.AssociateRequest{
		VaultID: vaultID,
		FileIDs: splitIDs(args[0]),
		CaseIDs: splitIDs(args[1]),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d case file(s) created\n", resp.Created)
	return nil
}

func (a *App) disassociate(ctx context.Context, args []string) error {
	vaultID, err := a.vault()
	if err != nil {
		return err
	}
	if len(args) != 2 {
		return usage("disassociate <file-id> <case-id,...>")
	}

	cctx, cancel := a.call(ctx)
	defer cancel()
	resp, err := a.api.Disassociate(cctx, &evgrpc.DisassociateRequest{
		VaultID: vaultID,
		FileID:  args[0],
		CaseIDs: splitIDs(args[1]),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d case file(s) removed\n", resp.Removed)
	return nil
}

func (a *App) registerExecution(ctx context.Context, args []string) error {
	vaultID, err := a.vault()
	if err != nil {
		return err
	}
	if len(args) < 1 || len(args) > 2 {
		return usage("execution <destination-folder> [id]")
	}
	req := &evgrpc.RegisterExecutionRequest{VaultID: vaultID, DestinationFolder: args[0]}
	if len(args) == 2 {
		req.ExecutionID = args[1]
	}

	cctx, cancel := a.call(ctx)
	defer cancel()
	resp, err := a.api.RegisterExecution(cctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "execution %s -> %s\n", resp.ExecutionID, resp.DestinationFolder)
	return nil
}

func (a *App) vault() (string, error) {
	if a.owner.ID == "" || a.owner.Kind != string(models.OwnerVault) {
		return "", errNoVault
	}
	return a.owner.ID, nil
}

func (a *App) printRow(f evgrpc.File) {
	if f.IsFolder {
		fmt.Fprintf(a.out, "d  %-36s  %s/\n", f.ID, f.Name)
		return
	}
	hold := f.HoldStatus
	if hold == "" {
		hold = "-"
	}
	fmt.Fprintf(a.out, "-  %-36s  %s  %d  %s\n", f.ID, f.Name, f.Size, hold)
}

func splitIDs(s string) []string {
	var out []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}
