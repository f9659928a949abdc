package metrics

import "github.com/prometheus/client_golang/prometheus"

var reg = prometheus.DefaultRegisterer

// Registerer returns the registerer collectors are created on. Swap it with
// UseRegisterer before the first collector family is touched.
func Registerer() prometheus.Registerer { return reg }

func UseRegisterer(r prometheus.Registerer) {
	if r != nil {
		reg = r
	}
}
