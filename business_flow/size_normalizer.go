package businessflow

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/amirphl/sneaker-price-ledger/app/services"
	"github.com/amirphl/sneaker-price-ledger/models"
	"github.com/amirphl/sneaker-price-ledger/utils"
)

var (
	sizePrefixPattern   = regexp.MustCompile(`^(?:(US|UK|EU|CM|KR)\s*(?:([WM])\b\.?)?|([WM])\b\.?)\s*`)
	sizeFractionPattern = regexp.MustCompile(`(\d+)\s+(\d+)\s*/\s*(\d+)`)
	sizeNumberPattern   = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

	unicodeFractions = strings.NewReplacer("⅓", " 1/3", "⅔", " 2/3", "½", " 1/2", "¼", " 1/4", "¾", " 3/4")
)

// euSizeFloor separates unlabelled EU sizes from US sizes
const euSizeFloor = 30

// ParseSize extracts the numeric value of a regional size label such as "US M 9.5" or "EU 41 1/3".
// It returns nil when the label has no numeric token or the value is not positive.
func ParseSize(label string) *float64 {
	rest := normalizeSizeLabel(label)
	if m := sizePrefixPattern.FindStringSubmatchIndex(rest); m != nil {
		rest = rest[m[1]:]
	}

	if m := sizeFractionPattern.FindStringSubmatch(rest); m != nil {
		whole, _ := strconv.ParseFloat(m[1], 64)
		num, _ := strconv.ParseFloat(m[2], 64)
		den, _ := strconv.ParseFloat(m[3], 64)
		if den > 0 {
			v := utils.RoundFloat(whole+num/den, 2)
			if v > 0 {
				return &v
			}
		}
	}

	token := sizeNumberPattern.FindString(rest)
	if token == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.Replace(token, ",", ".", 1), 64)
	if err != nil || v <= 0 {
		return nil
	}
	v = utils.RoundFloat(v, 2)
	return &v
}

// DetectSizeRegion reports the sizing system named by the label's prefix
func DetectSizeRegion(label string) (models.SizeRegion, bool) {
	m := sizePrefixPattern.FindStringSubmatch(normalizeSizeLabel(label))
	if m == nil || m[1] == "" {
		return "", false
	}
	return models.SizeRegion(strings.ToLower(m[1])), true
}

// DetectSizeGender reports the gender marker of a label such as "US W 7"
func DetectSizeGender(label string) (string, bool) {
	m := sizePrefixPattern.FindStringSubmatch(normalizeSizeLabel(label))
	if m == nil {
		return "", false
	}
	marker := m[2]
	if marker == "" {
		marker = m[3]
	}
	switch marker {
	case "W":
		return models.GenderWomen, true
	case "M":
		return models.GenderMen, true
	}
	return "", false
}

// InferSizeRegion picks the region of a label; unlabelled values of 30 and above are EU sizes
func InferSizeRegion(label string, value float64) models.SizeRegion {
	if region, ok := DetectSizeRegion(label); ok {
		return region
	}
	if value >= euSizeFloor {
		return models.SizeRegionEU
	}
	return models.SizeRegionUS
}

// SizeRegionFromConversion maps a marketplace size chart type ("us m", "us w", "eu", ...) to a region.
// gender is empty when the type carries none.
func SizeRegionFromConversion(conversionType string) (region models.SizeRegion, gender string, ok bool) {
	fields := strings.Fields(strings.ToLower(conversionType))
	if len(fields) == 0 {
		return "", "", false
	}

	switch fields[0] {
	case "us":
		region = models.SizeRegionUS
	case "uk":
		region = models.SizeRegionUK
	case "eu":
		region = models.SizeRegionEU
	case "cm":
		region = models.SizeRegionCM
	case "kr", "mm":
		region = models.SizeRegionKR
	default:
		return "", "", false
	}

	if len(fields) > 1 {
		switch fields[1] {
		case "m", "men", "mens":
			gender = models.GenderMen
		case "w", "women", "womens":
			gender = models.GenderWomen
		case "y", "gs", "k", "c", "td", "ps":
			gender = models.GenderChild
		}
	}
	return region, gender, true
}

// NormalizeGender maps marketplace gender attributes onto the size record genders
func NormalizeGender(gender string) string {
	switch strings.ToLower(strings.TrimSpace(gender)) {
	case "men", "mens", "male", "m":
		return models.GenderMen
	case "women", "womens", "female", "w":
		return models.GenderWomen
	case "unisex":
		return models.GenderUnisex
	case "child", "kids", "youth", "toddler", "preschool", "infant", "grade school":
		return models.GenderChild
	}
	return ""
}

// SizeCandidateFromVariant builds a reconciliation candidate from a variant's size chart.
// fallbackGender applies when no conversion names a gender. ok is false without a US size.
func SizeCandidateFromVariant(variant services.CatalogVariant, fallbackGender string, category *string) (SizeCandidate, bool) {
	candidate := SizeCandidate{Category: category}
	var gender string

	for _, conversion := range variant.SizeChart.Conversions() {
		region, g, ok := SizeRegionFromConversion(conversion.Type)
		if !ok {
			continue
		}
		value := ParseSize(conversion.Size)
		if value == nil {
			continue
		}
		if region == models.SizeRegionUS {
			if candidate.USSize > 0 {
				continue
			}
			candidate.USSize = *value
			if g != "" {
				gender = g
			}
			continue
		}
		if candidate.Value(region) == nil {
			candidate.SetValue(region, *value)
		}
	}

	if candidate.USSize <= 0 {
		if value := ParseSize(variant.VariantValue); value != nil && InferSizeRegion(variant.VariantValue, *value) == models.SizeRegionUS {
			candidate.USSize = *value
		}
	}
	if candidate.USSize <= 0 {
		return SizeCandidate{}, false
	}

	if gender == "" {
		gender = fallbackGender
	}
	if gender == "" {
		gender = models.GenderMen
	}
	candidate.Gender = gender
	return candidate, true
}

func normalizeSizeLabel(label string) string {
	return strings.ToUpper(strings.TrimSpace(unicodeFractions.Replace(label)))
}
