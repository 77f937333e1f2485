package generator

import (
	"strings"

	"github.com/brianvoe/gofakeit/v7"
)

// FakerProvider produces plausible looking values with gofakeit, picking a generator from the field name.
// It is not safe for concurrent use.
type FakerProvider struct {
	faker *gofakeit.Faker
}

// NewFakerProvider returns a provider seeded with seed. A zero seed picks a random one.
func NewFakerProvider(seed uint64) *FakerProvider {
	return &FakerProvider{faker: gofakeit.New(seed)}
}

func (p *FakerProvider) String(field string) string {
	switch strings.ToLower(field) {
	case "owner", "name", "user", "username", "customer":
		return p.faker.Name()
	case "type", "category", "kind":
		return p.faker.CarType()
	case "make", "maker", "brand":
		return p.faker.CarMaker()
	case "model":
		return p.faker.CarModel()
	case "email":
		return p.faker.Email()
	case "city":
		return p.faker.City()
	case "country":
		return p.faker.Country()
	case "color", "colour":
		return p.faker.Color()
	case "id", "uuid":
		return p.faker.UUID()
	default:
		return p.faker.Word()
	}
}

func (p *FakerProvider) Int(_ string, min int, max int) int {
	return p.faker.IntRange(min, max)
}

func (p *FakerProvider) Float(_ string, min float64, max float64) float64 {
	return p.faker.Float64Range(min, max)
}

func (p *FakerProvider) Bool(_ string) bool {
	return p.faker.Bool()
}

func (p *FakerProvider) Choice(_ string, options []interface{}) interface{} {
	return options[p.faker.IntRange(0, len(options)-1)]
}
