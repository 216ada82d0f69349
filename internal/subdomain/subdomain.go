// Package subdomain defines the queue payload record, its field
// validation, and its payload serialization.
package subdomain

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// NamePattern is the allowed shape for a subdomain identifier.
var NamePattern = regexp.MustCompile(`^[a-z0-9\-_+]{3,36}$`)

// PubkeyPattern is the allowed shape for an encoded owner public key.
var PubkeyPattern = regexp.MustCompile(`^pubkey:data:[0-9a-fA-F]+$`)

// MaxZonefileLen bounds the length of a subdomain's own zone-file text.
const MaxZonefileLen = 40960

// Record is the durable description of one subdomain creation request.
// It is serialized as the opaque payload blob stored by the queue.
type Record struct {
	Name           string `json:"name"`
	OwnerPubkey    string `json:"owner_pubkey"`
	SequenceNumber int    `json:"sequence_number"`
	ZonefileText   string `json:"zonefile_text"`
}

// Validate checks the record's fields against the constraints in
// spec §3 independent of how it was constructed.
func (r Record) Validate() error {
	if !NamePattern.MatchString(r.Name) {
		return fmt.Errorf("subdomain: invalid name %q", r.Name)
	}
	if !PubkeyPattern.MatchString(r.OwnerPubkey) {
		return fmt.Errorf("subdomain: invalid owner_pubkey")
	}
	if r.SequenceNumber != 0 {
		return fmt.Errorf("subdomain: sequence_number must be 0 on creation, got %d", r.SequenceNumber)
	}
	if len(r.ZonefileText) > MaxZonefileLen {
		return fmt.Errorf("subdomain: zonefile_text exceeds %d bytes", MaxZonefileLen)
	}
	return nil
}

// Marshal produces the self-describing text blob stored as the queue
// row's payload. The blob is opaque to the queue store itself.
func (r Record) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// Unmarshal parses a payload blob previously produced by Marshal.
func Unmarshal(payload []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(payload, &r); err != nil {
		return Record{}, fmt.Errorf("subdomain: unmarshal payload: %w", err)
	}
	return r, nil
}

// New builds a Record for a freshly-created subdomain. The sequence
// number is always 0 per spec §3; New takes no sequence-number
// parameter, so callers cannot pass a nonzero one in.
func New(name, ownerPubkey, zonefileText string) Record {
	return Record{
		Name:           name,
		OwnerPubkey:    ownerPubkey,
		SequenceNumber: 0,
		ZonefileText:   zonefileText,
	}
}
