package email

import (
	"fmt"
	"net/mail"
	"strings"
)

// parseAddress validates a single RFC 5322 address and requires the parsed
// addr-spec to have both a local part and a domain. A non-empty name
// replaces any display name carried in raw.
func parseAddress(raw, name string) (*mail.Address, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}

	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, raw, err)
	}

	at := strings.LastIndex(addr.Address, "@")
	if at <= 0 || at == len(addr.Address)-1 {
		return nil, fmt.Errorf("%w: %q: missing local part or domain", ErrInvalidAddress, raw)
	}

	if name != "" {
		addr.Name = name
	}
	return addr, nil
}

// parseAddresses validates every entry before returning any of them, so a
// bad address in the middle of a list leaves the caller's state untouched.
func parseAddresses(raws []string) ([]*mail.Address, error) {
	if len(raws) == 0 {
		return nil, nil
	}

	result := make([]*mail.Address, 0, len(raws))
	for _, raw := range raws {
		addr, err := parseAddress(raw, "")
		if err != nil {
			return nil, err
		}
		result = append(result, addr)
	}
	return result, nil
}

// addressStrings renders addresses in their RFC 5322 header form.
func addressStrings(addrs []*mail.Address) []string {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}

// bareAddresses returns only the addr-spec of each address, as used for
// SMTP envelopes and API destinations.
func bareAddresses(addrs []*mail.Address) []string {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Address)
	}
	return out
}

func cloneAddresses(addrs []*mail.Address) []*mail.Address {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]*mail.Address, 0, len(addrs))
	for _, a := range addrs {
		c := *a
		out = append(out, &c)
	}
	return out
}
