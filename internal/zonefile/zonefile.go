// Package zonefile assembles subdomain zone-file text and implements
// the injected zone-file builder collaborator the Committer depends
// on (Design Note §9: "embedded polymorphic zone-file builder is an
// injected collaborator interface").
package zonefile

import (
	"context"
	"fmt"
	"strings"

	"github.com/stacks-network/subdomain-registrar/internal/subdomain"
)

// URIRecord is one entry of an intake request's "uris" array.
type URIRecord struct {
	Name     string `json:"name" validate:"required"`
	Priority int    `json:"priority"`
	Weight   int    `json:"weight"`
	Target   string `json:"target" validate:"required"`
}

// BuildSubdomainZonefile assembles the zone-file text owned by a single
// subdomain from its URI records, per spec §6: "$origin = subdomain,
// $ttl = 3600, one uri record per array entry".
func BuildSubdomainZonefile(subdomainName string, uris []URIRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "$origin %s\n$ttl 3600\n", subdomainName)
	for _, u := range uris {
		fmt.Fprintf(&b, "%s\tIN\tURI\t%d\t%d\t%q\n", u.Name, u.Priority, u.Weight, u.Target)
	}
	return b.String()
}

// Builder is the collaborator the Committer depends on to turn a batch
// of pending subdomain records into one parent zone-file update. The
// core depends on this interface, never on a concrete zone-file
// library, per Design Note §9.
type Builder interface {
	// Build returns the assembled parent zone-file text and the
	// positions within records that the builder already knows to be
	// duplicates (e.g. because it independently resolved them against
	// the chain). Positions are indices into records, ascending.
	Build(ctx context.Context, parentDomain string, records []subdomain.Record) (text string, duplicateIndices []int, err error)
}

// ExistenceChecker reports whether a subdomain name is already known to
// exist under a parent domain. It is the same shape of collaborator as
// the Existence Oracle the Intake RPC consults before enqueue (spec
// §2 item 3); the default Builder below reuses it so that a subdomain
// which slipped past the pre-enqueue check (e.g. it was created by a
// concurrent out-of-band process) is still caught at commit time.
type ExistenceChecker interface {
	Exists(ctx context.Context, parentDomain, subdomainName string) (bool, error)
}

// DefaultBuilder assembles a parent zone file as one text-zone-file
// record per pending subdomain, consulting an ExistenceChecker for
// duplicates. It is grounded on the shape of
// original_source/subdomain_registrar/subdomains_registrar.py's
// add_subdomains call: a text blob plus a list of failed indices.
type DefaultBuilder struct {
	Existence ExistenceChecker
}

// NewDefaultBuilder constructs a DefaultBuilder. existence may be nil,
// in which case no duplicate detection beyond the queue store's own
// uniqueness constraint is performed.
func NewDefaultBuilder(existence ExistenceChecker) *DefaultBuilder {
	return &DefaultBuilder{Existence: existence}
}

func (b *DefaultBuilder) Build(ctx context.Context, parentDomain string, records []subdomain.Record) (string, []int, error) {
	var duplicates []int
	var out strings.Builder
	for i, r := range records {
		if b.Existence != nil {
			exists, err := b.Existence.Exists(ctx, parentDomain, r.Name)
			if err != nil {
				return "", nil, fmt.Errorf("zonefile: existence check for %q: %w", r.Name, err)
			}
			if exists {
				duplicates = append(duplicates, i)
				continue
			}
		}
		fmt.Fprintf(&out, "%s\tTXT\t%q\n", r.Name, encodeZoneFileEntry(r))
	}
	return out.String(), duplicates, nil
}

// encodeZoneFileEntry packs the fields a subdomain creation op carries
// in its parent zone-file TXT entry, mirroring
// subdomains_registrar.py's Subdomain.as_zonefile_entry.
func encodeZoneFileEntry(r subdomain.Record) string {
	return fmt.Sprintf("owner=%s,seqn=%d,parts=1,zf0=%s",
		r.OwnerPubkey, r.SequenceNumber, r.ZonefileText)
}
