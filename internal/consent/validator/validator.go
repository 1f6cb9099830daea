// Package validator checks consent submissions before they are encoded.
package validator

import (
	"strings"

	"tcfgate/internal/consent/models"
)

// VendorRegistry answers vendor membership. *vendorlist.Snapshot satisfies it.
type VendorRegistry interface {
	HasVendor(id int) bool
}

// Validate applies every rule and collects every defect, in rule order:
// domain, required purpose, then vendor membership. A nil registry knows no
// vendors.
func Validate(sub models.Submission, registry VendorRegistry) models.Outcome {
	var errs []models.ValidationError

	if strings.TrimSpace(sub.Domain) == "" {
		errs = append(errs, models.MissingDomain())
	}
	if !sub.HasPurposeConsent(models.RequiredPurpose) {
		errs = append(errs, models.MissingRequiredPurpose(models.RequiredPurpose))
	}
	errs = append(errs, unknownVendors(registry, sub.Vendors, sub.VendorLegitimateInterests)...)

	return models.Outcome{Errors: errs}
}

// unknownVendors reports each distinct unknown id once, in first-seen order.
func unknownVendors(registry VendorRegistry, lists ...[]int) []models.ValidationError {
	var errs []models.ValidationError
	reported := map[int]struct{}{}
	for _, ids := range lists {
		for _, id := range ids {
			if registry != nil && registry.HasVendor(id) {
				continue
			}
			if _, seen := reported[id]; seen {
				continue
			}
			reported[id] = struct{}{}
			errs = append(errs, models.UnknownVendor(id))
		}
	}
	return errs
}
