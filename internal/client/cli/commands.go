package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/contactsync/internal/common"
	"github.com/dmitrijs2005/contactsync/internal/models"
)

const healthTimeout = 2 * time.Second

func (a *App) fail(ctx context.Context, op string, err error) error {
	a.logger.Warn(ctx, op+" failed", "error", err)
	switch {
	case errors.Is(err, common.ErrNotFound):
		fmt.Fprintln(a.out, "No such contact")
	case errors.Is(err, common.ErrInvalidRequest):
		fmt.Fprintln(a.out, "Invalid input:", err)
	default:
		fmt.Fprintln(a.out, "Error:", err)
	}
	return err
}

// idArg takes the id from args or asks for it.
func (a *App) idArg(args []string, prompt string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	return GetSimpleText(a.reader, prompt, a.out)
}

func (a *App) Add(ctx context.Context, args []string) error {
	var first, last, phone string
	if len(args) >= 3 {
		first, last, phone = args[0], args[1], strings.Join(args[2:], " ")
	} else {
		var err error
		if first, err = GetSimpleText(a.reader, "First name", a.out); err != nil {
			return err
		}
		if last, err = GetSimpleText(a.reader, "Last name", a.out); err != nil {
			return err
		}
		if phone, err = GetSimpleText(a.reader, "Phone number", a.out); err != nil {
			return err
		}
	}

	c, err := a.engine.Create(ctx, first, last, phone)
	if err != nil {
		return a.fail(ctx, "add", err)
	}
	fmt.Fprintln(a.out, "Added", c.ID)
	return nil
}

func (a *App) Edit(ctx context.Context, args []string) error {
	id, err := a.idArg(args, "Enter contact id to edit")
	if err != nil {
		return err
	}
	current, err := a.engine.Get(ctx, id)
	if err == nil && current.SoftDeleted {
		err = common.ErrNotFound
	}
	if err != nil {
		return a.fail(ctx, "edit", err)
	}

	var patch models.Patch
	if patch.FirstName, err = GetOptionalText(a.reader, "First name", current.FirstName, a.out); err != nil {
		return err
	}
	if patch.LastName, err = GetOptionalText(a.reader, "Last name", current.LastName, a.out); err != nil {
		return err
	}
	if patch.PhoneNumber, err = GetOptionalText(a.reader, "Phone number", current.PhoneNumber, a.out); err != nil {
		return err
	}
	if patch.FirstName == nil && patch.LastName == nil && patch.PhoneNumber == nil {
		fmt.Fprintln(a.out, "Nothing to change")
		return nil
	}

	if _, err := a.engine.Edit(ctx, id, patch); err != nil {
		return a.fail(ctx, "edit", err)
	}
	fmt.Fprintln(a.out, "Updated", id)
	return nil
}

func (a *App) Delete(ctx context.Context, args []string) error {
	id, err := a.idArg(args, "Enter contact id to delete")
	if err != nil {
		return err
	}
	if err := a.engine.Delete(ctx, id); err != nil {
		return a.fail(ctx, "delete", err)
	}
	fmt.Fprintln(a.out, "Deleted", id)
	return nil
}

func syncLabel(c *models.Contact) string {
	switch {
	case c.SoftDeleted:
		return "deleting"
	case c.Synced:
		return "synced"
	case c.PendingChange != models.PendingNone:
		return string(c.PendingChange)
	default:
		return "unsynced"
	}
}

func (a *App) List(ctx context.Context) error {
	list, err := a.engine.List(ctx)
	if err != nil {
		return a.fail(ctx, "list", err)
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No contacts")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPHONE\tSTATE")
	for _, c := range list {
		fmt.Fprintf(tw, "%s\t%s %s\t%s\t%s\n", c.ID, c.FirstName, c.LastName, c.PhoneNumber, syncLabel(c))
	}
	return tw.Flush()
}

func (a *App) Pending(ctx context.Context) error {
	list, err := a.engine.Pending(ctx)
	if err != nil {
		return a.fail(ctx, "pending", err)
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "Everything is synced")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCHANGE\tEDITED")
	for _, c := range list {
		edited := "-"
		if c.EditedAt != nil {
			edited = c.EditedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ID, syncLabel(c), edited)
	}
	return tw.Flush()
}

func (a *App) Status(ctx context.Context) error {
	fmt.Fprintln(a.out, "Connection:", a.engine.State())

	pending, err := a.engine.Pending(ctx)
	if err != nil {
		return a.fail(ctx, "status", err)
	}
	fmt.Fprintln(a.out, "Pending:", len(pending))

	if a.health == nil {
		return nil
	}
	hctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	h, err := a.health.Health(hctx)
	if err != nil {
		a.logger.Debug(ctx, "health check failed", "error", err)
		fmt.Fprintln(a.out, "Server: unreachable")
		return nil
	}
	fmt.Fprintf(a.out, "Server: %s, %d clients connected\n", h.Status, h.Clients)
	return nil
}

func (a *App) Sync(ctx context.Context) error {
	r, err := a.engine.Sync(ctx)
	if err != nil {
		if errors.Is(err, common.ErrTransport) {
			a.logger.Warn(ctx, "sync incomplete", "error", err)
			fmt.Fprintf(a.out, "Server unreachable; pushed %d, %d changes stay queued\n", r.Pushed, r.Failed)
			return nil
		}
		return a.fail(ctx, "sync", err)
	}
	fmt.Fprintf(a.out, "Pushed %d, failed %d, pulled %d\n", r.Pushed, r.Failed, r.Pulled)
	return nil
}
