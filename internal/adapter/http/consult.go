package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/couchcryptid/discharge-forecast-service/internal/domain"
	"github.com/couchcryptid/discharge-forecast-service/internal/query"
)

var validate = validator.New()

type consultQuery struct {
	Lat *float64 `validate:"required,gte=-90,lte=90"`
	Lon *float64 `validate:"required,gte=-180,lte=180"`
}

// consultResponse is the /consultar body. Values that could not be resolved
// encode as null.
type consultResponse struct {
	Lat        float64                 `json:"lat"`
	Lon        float64                 `json:"lon"`
	Source     string                  `json:"source"`
	Mean       domain.Value            `json:"dis24_mean"`
	Std        domain.Value            `json:"dis24_std"`
	Thresholds map[string]domain.Value `json:"thresholds"`
}

func newConsultResponse(res query.Result) consultResponse {
	out := consultResponse{
		Lat:        res.Lat,
		Lon:        res.Lon,
		Source:     res.Source,
		Mean:       res.Mean.Value,
		Std:        res.Std.Value,
		Thresholds: make(map[string]domain.Value, len(res.Thresholds)),
	}
	for _, th := range res.Thresholds {
		out.Thresholds[th.File] = th.Resolution.Value
	}
	return out
}

func parseConsultQuery(r *http.Request) (consultQuery, error) {
	var q consultQuery
	var err error
	if q.Lat, err = parseFloatParam(r, "lat"); err != nil {
		return q, err
	}
	if q.Lon, err = parseFloatParam(r, "lon"); err != nil {
		return q, err
	}
	if err := validate.Struct(q); err != nil {
		return q, describeValidation(err)
	}
	return q, nil
}

var fieldParams = map[string]string{"Lat": "lat", "Lon": "lon"}

// describeValidation turns the first validator failure into a message naming
// the query parameter.
func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	name := fieldParams[fe.Field()]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", name)
	case "gte", "lte":
		lo, hi := "-90", "90"
		if name == "lon" {
			lo, hi = "-180", "180"
		}
		return fmt.Errorf("%s must be between %s and %s", name, lo, hi)
	default:
		return fmt.Errorf("%s is invalid", name)
	}
}
