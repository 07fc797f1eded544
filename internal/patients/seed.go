package patients

import "time"

func mustParseAdmission(value string) int64 {
	parsed, err := time.Parse("2006-01-02T15:04:05", value)
	if err != nil {
		panic(err)
	}
	return parsed.UTC().Unix()
}

func mustParseBloodPressure(raw string) BloodPressure {
	parsed, err := ParseBloodPressure(raw)
	if err != nil {
		panic(err)
	}
	return parsed
}

// SeedRoster returns the built-in demo roster used when no admission feed is
// configured. Patient 1003 carries a bare systolic reading on purpose; the
// diastolic component is unknown at the source.
func SeedRoster() []Patient {
	return []Patient{
		{
			ID:                1001,
			Name:              "John Smith",
			RoomNumber:        "ICU-101",
			AdmittedAtSeconds: mustParseAdmission("2023-03-15T08:30:00"),
			LengthOfStayDays:  5,
			Vitals: Vitals{
				HeartRate:        85,
				BloodPressure:    mustParseBloodPressure("125/85"),
				OxygenSaturation: 98,
				TemperatureC:     37.2,
			},
			RiskScore: 75,
			RiskTrend: RiskTrendUp,
			Notes: []Note{
				{
					Text:             "Patient showing signs of respiratory distress. Increased monitoring recommended.",
					CreatedAtSeconds: mustParseAdmission("2023-03-19T14:30:00"),
				},
				{
					Text:             "Administered additional oxygen therapy. Will reassess in 2 hours.",
					CreatedAtSeconds: mustParseAdmission("2023-03-19T12:15:00"),
				},
			},
		},
		{
			ID:                1002,
			Name:              "Sarah Johnson",
			RoomNumber:        "ICU-102",
			AdmittedAtSeconds: mustParseAdmission("2023-03-17T14:45:00"),
			LengthOfStayDays:  3,
			Vitals: Vitals{
				HeartRate:        72,
				BloodPressure:    mustParseBloodPressure("118/75"),
				OxygenSaturation: 97,
				TemperatureC:     36.8,
			},
			RiskScore: 45,
			RiskTrend: RiskTrendDown,
			Notes: []Note{
				{
					Text:             "Patient stable after surgery. Pain managed with current medication.",
					CreatedAtSeconds: mustParseAdmission("2023-03-19T10:00:00"),
				},
			},
		},
		{
			ID:                1003,
			Name:              "John Green",
			RoomNumber:        "ICU-103",
			AdmittedAtSeconds: mustParseAdmission("2023-03-18T09:15:00"),
			LengthOfStayDays:  2,
			Vitals: Vitals{
				HeartRate:        90,
				BloodPressure:    mustParseBloodPressure("90"),
				OxygenSaturation: 94,
				TemperatureC:     37.5,
			},
			RiskScore: 5,
			RiskTrend: RiskTrendUp,
		},
	}
}
