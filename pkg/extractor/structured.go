package extractor

import (
	"strings"

	"github.com/dtnitsch/lead-crawler/models"
	"github.com/dtnitsch/lead-crawler/pkg/jsonld"
)

var (
	agentTypes    = []string{"RealEstateAgent", "Person"}
	offerTypes    = []string{"Offer", "AggregateOffer"}
	listingTypes  = []string{"Residence", "SingleFamilyResidence", "House", "Apartment", "Product", "RealEstateListing", "Accommodation"}
	saleTypes     = []string{"SellAction", "BuyAction"}
	employerKeys  = []string{"affiliation", "worksFor", "parentOrganization", "memberOf"}
	priceKeyPaths = [][]string{
		{"price"},
		{"priceSpecification", "price"},
		{"lowPrice"},
	}
)

// applyStructured walks every ld+json block in page order and fills fields
// it has not seen yet.
func applyStructured(b *models.RecordBuilder, doc jsonld.Document) {
	set := func(f models.Field, v string) {
		b.SetIfAbsent(f, v, models.StrategyStructuredData)
	}

	for _, block := range doc.Blocks {
		jsonld.Walk(block, func(obj map[string]any) bool {
			if jsonld.HasType(obj, agentTypes...) || jsonld.TypeHasSuffix(obj, "agent") {
				set(models.FieldName, jsonld.String(obj["name"]))
				set(models.FieldEmail, strings.TrimPrefix(jsonld.String(obj["email"]), "mailto:"))
				for _, k := range employerKeys {
					set(models.FieldBrokerage, jsonld.String(obj[k]))
				}
			}

			if locality := jsonld.String(obj["addressLocality"]); locality != "" {
				set(models.FieldCity, locality)
			}

			switch {
			case jsonld.HasType(obj, saleTypes...):
				set(models.FieldLastSale, saleText(obj))
			case jsonld.HasType(obj, offerTypes...):
				if isSold(obj) {
					set(models.FieldLastSale, saleText(obj))
				} else {
					set(models.FieldPrice, firstPrice(obj))
				}
			case jsonld.HasType(obj, listingTypes...):
				set(models.FieldPrice, firstPrice(obj))
				set(models.FieldPrice, firstPrice(obj["offers"]))
			}
			return true
		})
	}
}

func firstPrice(v any) string {
	for _, path := range priceKeyPaths {
		if s := jsonld.String(jsonld.Get(v, path...)); s != "" {
			return s
		}
	}
	return ""
}

func isSold(obj map[string]any) bool {
	avail := strings.ToLower(jsonld.String(obj["availability"]))
	return strings.HasSuffix(avail, "soldout") || strings.HasSuffix(avail, "sold")
}

// saleText renders a past sale as its price, followed by the date when known.
func saleText(obj map[string]any) string {
	price := firstPrice(obj)
	if price == "" {
		return ""
	}
	for _, k := range []string{"endTime", "startTime", "availabilityEnds", "validThrough", "priceValidUntil"} {
		if date := jsonld.String(obj[k]); date != "" {
			return price + " on " + date
		}
	}
	return price
}
