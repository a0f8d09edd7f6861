package entity

import "facechanger/internal/ledger"

// LedgerVersions 将版本记录转换为 ledger 视图，输入需按版本号升序
func LedgerVersions(rows []DbOutputVersion) []ledger.Version {
	out := make([]ledger.Version, 0, len(rows))
	for _, row := range rows {
		out = append(out, ledger.Version{Index: row.VersionIndex, Keys: row.Keys.ToSlice()})
	}
	return out
}
