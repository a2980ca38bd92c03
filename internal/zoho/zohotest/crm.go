// Package zohotest provides an in-memory CRM for tests.
package zohotest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/himplant/crmsync/internal/syncerr"
	"github.com/himplant/crmsync/internal/zoho"
)

// Call records one request made against the fake.
type Call struct {
	Op       string
	Module   string
	Criteria string
	ID       string
}

// CRM stores records per module and answers single "(Field:equals:value)"
// criteria searches.
type CRM struct {
	mu      sync.Mutex
	records map[string][]zoho.Record
	seq     int
	calls   []Call

	// FailOn makes the named operation ("search", "create", "update") on
	// the given module fail, keyed "op module".
	FailOn map[string]error
}

// New returns an empty CRM.
func New() *CRM {
	return &CRM{
		records: map[string][]zoho.Record{},
		FailOn:  map[string]error{},
	}
}

// Seed stores rec in module and returns its id.
func (c *CRM) Seed(module string, rec zoho.Record) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insert(module, rec)
}

// Records returns copies of the records stored in module.
func (c *CRM) Records(module string) []zoho.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]zoho.Record, 0, len(c.records[module]))
	for _, rec := range c.records[module] {
		out = append(out, clone(rec))
	}
	return out
}

// Calls returns the recorded calls filtered by op ("" for all).
func (c *CRM) Calls(op string) []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Call
	for _, call := range c.calls {
		if op == "" || call.Op == op {
			out = append(out, call)
		}
	}
	return out
}

// Search implements the CRM search call.
func (c *CRM) Search(_ context.Context, module, criteria string) ([]zoho.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Call{Op: "search", Module: module, Criteria: criteria})
	if err := c.failure("search", module); err != nil {
		return nil, err
	}

	field, value, err := parseEquals(criteria)
	if err != nil {
		return nil, syncerr.Downstream("zoho search "+module, 400, err)
	}
	var out []zoho.Record
	for _, rec := range c.records[module] {
		if rec.String(field) == value {
			out = append(out, clone(rec))
		}
	}
	return out, nil
}

// Create implements the CRM create call.
func (c *CRM) Create(_ context.Context, module string, rec zoho.Record) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.failure("create", module); err != nil {
		c.calls = append(c.calls, Call{Op: "create", Module: module})
		return "", err
	}
	id := c.insert(module, rec)
	c.calls = append(c.calls, Call{Op: "create", Module: module, ID: id})
	return id, nil
}

// Update implements the CRM update call.
func (c *CRM) Update(_ context.Context, module, id string, fields zoho.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, Call{Op: "update", Module: module, ID: id})
	if err := c.failure("update", module); err != nil {
		return err
	}
	for _, rec := range c.records[module] {
		if rec.ID() == id {
			for k, v := range fields {
				rec[k] = v
			}
			return nil
		}
	}
	return syncerr.Downstream("zoho update "+module, 400, fmt.Errorf("INVALID_DATA: record %s not found", id))
}

func (c *CRM) insert(module string, rec zoho.Record) string {
	c.seq++
	id := fmt.Sprintf("%s-%d", strings.ToLower(module), c.seq)
	stored := clone(rec)
	stored["id"] = id
	c.records[module] = append(c.records[module], stored)
	return id
}

func (c *CRM) failure(op, module string) error {
	if c.FailOn == nil {
		return nil
	}
	return c.FailOn[op+" "+module]
}

func parseEquals(criteria string) (string, string, error) {
	if !strings.HasPrefix(criteria, "(") || !strings.HasSuffix(criteria, ")") {
		return "", "", errors.New("INVALID_QUERY: unsupported criteria " + criteria)
	}
	inner := criteria[1 : len(criteria)-1]
	field, rest, ok := strings.Cut(inner, ":equals:")
	if !ok {
		return "", "", errors.New("INVALID_QUERY: unsupported criteria " + criteria)
	}
	unescape := strings.NewReplacer(`\(`, `(`, `\)`, `)`, `\,`, `,`)
	return field, unescape.Replace(rest), nil
}

func clone(rec zoho.Record) zoho.Record {
	out := make(zoho.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
