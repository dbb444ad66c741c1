package boshdriver

import "encoding/json"

func parseConfigsJSON(typ string, raw []byte) ([]ConfigEntry, error) {
	var payload struct {
		Tables []struct {
			Rows []map[string]string `json:"Rows"`
		} `json:"Tables"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}

	var out []ConfigEntry
	for _, table := range payload.Tables {
		for _, row := range table.Rows {
			name := row["name"]
			if name == "" {
				continue
			}
			out = append(out, ConfigEntry{Type: typ, Name: name})
		}
	}
	return out, nil
}

func parseStemcellsJSON(raw []byte) ([]Stemcell, error) {
	var payload struct {
		Tables []struct {
			Rows []map[string]string `json:"Rows"`
		} `json:"Tables"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}

	var out []Stemcell
	for _, table := range payload.Tables {
		for _, row := range table.Rows {
			out = append(out, Stemcell{
				Name:    row["name"],
				Version: row["version"],
				OS:      row["os"],
			})
		}
	}
	return out, nil
}
