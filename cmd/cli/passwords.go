package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/and161185/passvault/internal/client"
	"github.com/and161185/passvault/internal/errs"
	"github.com/and161185/passvault/internal/model"
)

func cmdWhoami(args []string) error {
	fs := flag.NewFlagSet("whoami", flag.ContinueOnError)
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" && *email == "" {
		id, err := loadIdentity()
		if err != nil {
			return err
		}
		printJSON(id)
		return nil
	}
	if *name == "" || *email == "" {
		return errors.New("need -name and -email")
	}
	id := model.OwnerIdentity{DisplayName: *name, Email: *email}
	if err := saveIdentity(id); err != nil {
		return err
	}
	printJSON(id)
	return nil
}

func cmdList(ctx context.Context, cli *client.Client, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	site := fs.String("site", "", "only records for this site")
	if err := fs.Parse(args); err != nil {
		return err
	}
	owner, err := loadIdentity()
	if err != nil {
		return err
	}
	recs, err := cli.List(ctx, owner)
	if err != nil {
		return err
	}

	type row struct {
		ID       string `json:"id"`
		Site     string `json:"site"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	rows := []row{}
	for _, r := range recs {
		if *site != "" && r.Form.Site != *site {
			continue
		}
		rows = append(rows, row{ID: r.ID.String(), Site: r.Form.Site, Username: r.Form.Username, Password: r.Form.Password})
	}
	printJSON(rows)
	return nil
}

func cmdCheck(ctx context.Context, cli *client.Client, args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	site := fs.String("site", "", "site")
	user := fs.String("user", "", "username on the site")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *site == "" || *user == "" {
		return errors.New("need -site and -user")
	}
	owner, err := loadIdentity()
	if err != nil {
		return err
	}
	id, ok, err := cli.Check(ctx, *site, *user, owner)
	if err != nil {
		return err
	}
	out := map[string]any{"exists": ok}
	if ok {
		out["id"] = id.String()
	}
	printJSON(out)
	return nil
}

func cmdSave(ctx context.Context, cli *client.Client, args []string, in *os.File) error {
	fs := flag.NewFlagSet("save", flag.ContinueOnError)
	site := fs.String("site", "", "site")
	user := fs.String("user", "", "username on the site")
	pass := fs.String("p", "", "password ('-'=stdin, empty=prompt)")
	force := fs.Bool("force", false, "save even if a record for site and user exists")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *site == "" || *user == "" {
		return errors.New("need -site and -user")
	}
	owner, err := loadIdentity()
	if err != nil {
		return err
	}
	if !*force {
		id, ok, err := cli.Check(ctx, *site, *user, owner)
		if err != nil {
			return err
		}
		if ok {
			return fmt.Errorf("record %s already exists for %s@%s (use -force)", id, *user, *site)
		}
	}
	pw, err := readPassword(*pass, in)
	if err != nil {
		return err
	}
	if pw == "" {
		return errors.New("empty password")
	}

	id, err := cli.Save(ctx, model.CredentialForm{Site: *site, Username: *user, Password: pw}, owner)
	if err != nil {
		return err
	}
	printJSON(map[string]string{"id": id.String()})
	return nil
}

func cmdRm(ctx context.Context, cli *client.Client, args []string) error {
	fs := flag.NewFlagSet("rm", flag.ContinueOnError)
	id := fs.String("id", "", "record id (uuid)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("need -id")
	}
	if err := cli.DeleteByID(ctx, *id); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return fmt.Errorf("record %s not found", *id)
		}
		return err
	}
	printJSON(map[string]any{"deleted": *id})
	return nil
}

// cmdRmLoose calls the legacy structural-filter delete with the saved identity as the user
// part. The server's flat filter never matches a saved record, so this reports no match;
// it exists to exercise that route. Use rm to delete.
func cmdRmLoose(ctx context.Context, cli *client.Client, args []string) error {
	fs := flag.NewFlagSet("rm-loose", flag.ContinueOnError)
	id := fs.String("id", "", "record id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("need -id")
	}
	owner, err := loadIdentity()
	if err != nil {
		return err
	}
	user := map[string]any{"displayName": owner.DisplayName, "email": owner.Email}
	if err := cli.DeleteLoose(ctx, *id, user); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return fmt.Errorf("no record matched id %s", *id)
		}
		return err
	}
	printJSON(map[string]any{"deleted": *id})
	return nil
}

// readPassword returns p as is, reads one line from in for "-", and prompts when p is
// empty and in is a terminal.
func readPassword(p string, in *os.File) (string, error) {
	switch {
	case p != "" && p != "-":
		return p, nil
	case p == "" && term.IsTerminal(int(in.Fd())):
		fmt.Fprint(os.Stderr, "Password: ")
		b, err := term.ReadPassword(int(in.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
