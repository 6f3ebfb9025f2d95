package record

import "encoding/json"

// AddressSet is the set of addresses observed on one interface. The empty
// interface key holds the addresses of the default outbound route. An empty
// field means the family is absent and is stored as null.
type AddressSet struct {
	V4     string
	V6     string
	V6Temp string
}

type addressJSON struct {
	V4     *string `json:"v4"`
	V6     *string `json:"v6"`
	V6Temp *string `json:"v6_temp"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (a AddressSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(addressJSON{
		V4:     optional(a.V4),
		V6:     optional(a.V6),
		V6Temp: optional(a.V6Temp),
	})
}

// UnmarshalJSON accepts null, a string or a missing key for every family.
func (a *AddressSet) UnmarshalJSON(b []byte) error {
	var v addressJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*a = AddressSet{V4: deref(v.V4), V6: deref(v.V6), V6Temp: deref(v.V6Temp)}
	return nil
}

// Equal reports whether all three addresses match.
func (a AddressSet) Equal(b AddressSet) bool {
	return a.V4 == b.V4 && a.V6 == b.V6 && a.V6Temp == b.V6Temp
}

func (a AddressSet) IsEmpty() bool {
	return a.V4 == "" && a.V6 == "" && a.V6Temp == ""
}

// Record is the state persisted between runs.
type Record struct {
	LastIP     map[string]AddressSet `json:"last_ip"`
	LastCheck  int64                 `json:"last_check"`
	LastUpdate int64                 `json:"last_update"`
}

// Clone returns a deep copy so callers never share the address map.
func (r Record) Clone() Record {
	c := Record{
		LastIP:     make(map[string]AddressSet, len(r.LastIP)),
		LastCheck:  r.LastCheck,
		LastUpdate: r.LastUpdate,
	}
	for k, v := range r.LastIP {
		c.LastIP[k] = v
	}
	return c
}

// Changed returns the keys of probed whose address set differs from the
// recorded one. A key missing from the record counts as changed.
func (r Record) Changed(probed map[string]AddressSet) []string {
	var changed []string
	for k, v := range probed {
		last, ok := r.LastIP[k]
		if !ok || !last.Equal(v) {
			changed = append(changed, k)
		}
	}
	return changed
}
