package domain

// ECMWF open-data surface parameters.
const (
	ParamPrecipitation = "tp"
	ParamTemperature   = "2t"
)

// MeteoMessage is one raw GRIB2 message of a short-range forecast.
type MeteoMessage struct {
	Param string
	Step  int
	Data  []byte
}
