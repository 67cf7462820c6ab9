package admin

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/artelie/backend/internal/common"
	"github.com/artelie/backend/internal/server/models"
	"github.com/artelie/backend/internal/server/services"
)

type SuperuserCreator interface {
	CreateSuperuser(ctx context.Context, in services.RegisterInput) (*models.Account, error)
}

// CreateSuperuser prompts for the account details on in/w and creates an
// active, verified staff superuser. Validation problems are printed one per
// line and returned.
func CreateSuperuser(ctx context.Context, creator SuperuserCreator, in *bufio.Reader, w io.Writer) (*models.Account, error) {
	var input services.RegisterInput
	var err error

	if input.Username, err = promptLine(in, "Username", w); err != nil {
		return nil, err
	}
	if input.Email, err = promptLine(in, "Email", w); err != nil {
		return nil, err
	}
	if input.FullName, err = promptLine(in, "Full name (optional)", w); err != nil {
		return nil, err
	}
	if input.Password, err = promptPassword("Password", w); err != nil {
		return nil, err
	}
	if input.PasswordConfirm, err = promptPassword("Password (again)", w); err != nil {
		return nil, err
	}

	a, err := creator.CreateSuperuser(ctx, input)
	if err != nil {
		printValidation(w, err)
		return nil, err
	}

	fmt.Fprintf(w, "Superuser %q created (id %s).\n", a.Username, a.ID)
	return a, nil
}

func printValidation(w io.Writer, err error) {
	var verr *common.ValidationError
	if !errors.As(err, &verr) {
		return
	}
	fields := make([]string, 0, len(verr.Fields))
	for f := range verr.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		fmt.Fprintf(w, "  %s: %s\n", f, strings.Join(verr.Fields[f], "; "))
	}
}
