// Package contacts resolves a booking customer to exactly one CRM person,
// a Contact when one exists, else a Lead, creating a Lead as a last resort.
package contacts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/himplant/crmsync/internal/syncerr"
	"github.com/himplant/crmsync/internal/zoho"
)

// ErrInvalidIdentity is returned when an identity has neither email nor phone.
var ErrInvalidIdentity = errors.New("identity has neither email nor phone")

// Resolver defaults.
const (
	DefaultLeadSource = "Square"
	DefaultLastName   = "(Square)"
)

// CRM is the record API the resolver needs.
type CRM interface {
	Search(ctx context.Context, module, criteria string) ([]zoho.Record, error)
	Create(ctx context.Context, module string, rec zoho.Record) (string, error)
	Update(ctx context.Context, module, id string, fields zoho.Record) error
}

// Options tunes lead creation and matching.
type Options struct {
	LeadSource      string
	DefaultLastName string
	// MatchMobile also searches the secondary phone field.
	MatchMobile bool
}

// Resolver finds or creates the CRM person for an identity.
type Resolver struct {
	crm    CRM
	opts   Options
	logger *slog.Logger
}

// NewResolver builds a resolver.
func NewResolver(log *slog.Logger, crm CRM, opts Options) *Resolver {
	if opts.LeadSource == "" {
		opts.LeadSource = DefaultLeadSource
	}
	if opts.DefaultLastName == "" {
		opts.DefaultLastName = DefaultLastName
	}
	return &Resolver{
		crm:    crm,
		opts:   opts,
		logger: log.With(slog.String("service", "contacts")),
	}
}

type lookup struct {
	kind  Kind
	field string
	value string
}

// Resolve searches Contacts then Leads, email before phone, and stops at
// the first hit. With no hit it creates a Lead.
func (r *Resolver) Resolve(ctx context.Context, id Identity) (PersonRef, error) {
	id.Email = NormalizeEmail(id.Email)
	id.Phone = NormalizePhone(id.Phone)
	if id.Email == "" && id.Phone == "" {
		return PersonRef{}, syncerr.Validation("resolve person", ErrInvalidIdentity)
	}

	for _, l := range r.lookups(id) {
		records, err := r.crm.Search(ctx, string(l.kind), zoho.Equals(l.field, l.value))
		if err != nil {
			return PersonRef{}, fmt.Errorf("search %s by %s: %w", l.kind, l.field, err)
		}
		if len(records) == 0 {
			continue
		}
		if len(records) > 1 {
			r.logger.Warn("multiple CRM records match, using the first",
				slog.String("module", string(l.kind)),
				slog.String("field", l.field),
				slog.Int("matches", len(records)),
			)
		}
		match := records[0]
		ref := PersonRef{Kind: l.kind, ID: match.ID()}
		ref.Backfilled = r.backfill(ctx, ref, match, id.Address)
		r.logger.Debug("person matched", slog.String("module", string(ref.Kind)), slog.String("id", ref.ID), slog.String("field", l.field))
		return ref, nil
	}

	leadID, err := r.crm.Create(ctx, zoho.ModuleLeads, r.leadRecord(id))
	if err != nil {
		return PersonRef{}, fmt.Errorf("create lead: %w", err)
	}
	r.logger.Info("lead created", slog.String("id", leadID))
	return PersonRef{Kind: KindLead, ID: leadID, Created: true}, nil
}

func (r *Resolver) lookups(id Identity) []lookup {
	var out []lookup
	for _, kind := range []Kind{KindContact, KindLead} {
		if id.Email != "" {
			out = append(out, lookup{kind: kind, field: "Email", value: id.Email})
		}
		if id.Phone != "" {
			out = append(out, lookup{kind: kind, field: "Phone", value: id.Phone})
			if r.opts.MatchMobile {
				out = append(out, lookup{kind: kind, field: "Mobile", value: id.Phone})
			}
		}
	}
	return out
}

// backfill copies the address onto a matched record that has no street.
// Failures are logged only.
func (r *Resolver) backfill(ctx context.Context, ref PersonRef, match zoho.Record, addr *Address) bool {
	if addr.Empty() {
		return false
	}
	if match.String(addressFieldsByKind[ref.Kind].Street) != "" {
		return false
	}
	fields := addressRecord(ref.Kind, addr)
	if len(fields) == 0 {
		return false
	}
	if err := r.crm.Update(ctx, string(ref.Kind), ref.ID, fields); err != nil {
		r.logger.Warn("address backfill failed",
			slog.String("module", string(ref.Kind)),
			slog.String("id", ref.ID),
			slog.Any("error", err),
		)
		return false
	}
	return true
}

func (r *Resolver) leadRecord(id Identity) zoho.Record {
	last := id.LastName
	if last == "" {
		last = r.opts.DefaultLastName
	}
	rec := zoho.Record{
		"Last_Name":   last,
		"Lead_Source": r.opts.LeadSource,
	}
	if id.FirstName != "" {
		rec["First_Name"] = id.FirstName
	}
	if id.Email != "" {
		rec["Email"] = id.Email
	}
	if id.Phone != "" {
		rec["Phone"] = id.Phone
	}
	if !id.Address.Empty() {
		for k, v := range addressRecord(KindLead, id.Address) {
			rec[k] = v
		}
	}
	return rec
}
