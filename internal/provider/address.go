package provider

import "net/mail"

// Addresses returns the addr-spec of each address, dropping display names.
func Addresses(addrs []*mail.Address) []string {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.Address)
	}
	return out
}
