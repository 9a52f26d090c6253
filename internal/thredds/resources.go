package thredds

import "github.com/JakeFAU/tdsharvest/internal/harvest"

// DefaultServiceLabel selects ISO metadata endpoints.
const DefaultServiceLabel = "ISO"

// Resources keeps every service whose type label equals label exactly, in
// dataset then service order.
func Resources(datasets []harvest.Dataset, label string) []harvest.Resource {
	var out []harvest.Resource
	for _, ds := range datasets {
		for _, svc := range ds.Services {
			if svc.Name == label {
				out = append(out, harvest.Resource{ID: ds.ID, ServiceURL: svc.URL})
			}
		}
	}
	return out
}
