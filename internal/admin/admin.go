// Package admin implements the bootstrap tool that creates the first
// administrator account or promotes an existing user.
package admin

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/timecapsule/internal/common"
	"github.com/dmitrijs2005/timecapsule/internal/flagx"
	"github.com/dmitrijs2005/timecapsule/internal/server/models"
	"github.com/dmitrijs2005/timecapsule/internal/server/services"
)

type Bootstrapper interface {
	BootstrapAdmin(ctx context.Context, in services.NewUser) (*models.User, bool, error)
}

// Options are the account fields given on the command line. Missing ones
// are prompted for.
type Options struct {
	Phone     string
	Firstname string
	Lastname  string
	Email     string
}

// ParseOptions reads -phone, -firstname, -lastname and -email from args and
// ignores everything else, so server config flags can be passed alongside.
func ParseOptions(args []string) (Options, error) {
	var o Options

	args = flagx.FilterArgs(args, []string{"-phone", "-firstname", "-lastname", "-email"})

	fs := flag.NewFlagSet("admin", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&o.Phone, "phone", "", "phone number of the administrator")
	fs.StringVar(&o.Firstname, "firstname", "", "first name")
	fs.StringVar(&o.Lastname, "lastname", "", "last name")
	fs.StringVar(&o.Email, "email", "", "optional email")

	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}
	return o, nil
}

// Run completes the options interactively and bootstraps the account.
func Run(ctx context.Context, b Bootstrapper, o Options, reader *bufio.Reader, w io.Writer) error {
	ask := func(dst *string, prompt string) error {
		if *dst != "" {
			return nil
		}
		v, err := GetSimpleText(reader, prompt, w)
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		*dst = v
		return nil
	}

	if err := ask(&o.Phone, "Phone number"); err != nil {
		return err
	}
	if o.Phone == "" {
		return fmt.Errorf("%w: phone is required", common.ErrorValidation)
	}
	if err := ask(&o.Firstname, "First name (ignored for existing users)"); err != nil {
		return err
	}
	if err := ask(&o.Lastname, "Last name (ignored for existing users)"); err != nil {
		return err
	}
	if err := ask(&o.Email, "Email (optional)"); err != nil {
		return err
	}
	password, err := GetPassword(reader, "Password (empty keeps the current one of an existing user)", w)
	if err != nil {
		return err
	}

	in := services.NewUser{
		Firstname: o.Firstname,
		Lastname:  o.Lastname,
		Phone:     o.Phone,
		Password:  password,
	}
	if o.Email != "" {
		in.Email = &o.Email
	}

	u, created, err := b.BootstrapAdmin(ctx, in)
	if err != nil {
		return err
	}

	if created {
		fmt.Fprintf(w, "Created administrator #%d (%s)\n", u.ID, u.Phone)
	} else {
		fmt.Fprintf(w, "Promoted user #%d (%s) to administrator\n", u.ID, u.Phone)
	}
	return nil
}
