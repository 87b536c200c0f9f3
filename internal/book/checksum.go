package book

import (
	"hash/crc32"
	"strconv"
	"strings"

	"github.com/gw/kraken-feed/internal/model"
)

// checksumDepth is the number of top-of-book levels per side folded into
// the CRC, per Kraken's published checksum procedure.
const checksumDepth = 10

// trim strips the decimal point and any leading zeros from a formatted
// number, matching the exchange's checksum string convention. Grounded on
// gocryptotrader's validateCRC32/trim in exchanges/kraken/kraken_websocket.go.
func trim(s string) string {
	s = strings.Replace(s, ".", "", 1)
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return "0"
	}
	return s
}

func formatChecksumNumber(f float64) string {
	return trim(strconv.FormatFloat(f, 'f', -1, 64))
}

// ChecksumL2 recomputes the CRC32 over the top checksumDepth ask levels
// (ascending) followed by the top checksumDepth bid levels (descending),
// concatenating trimmed price then quantity for each level — the same
// shape as the v1 algorithm gocryptotrader implements, applied to v2's
// float-typed levels.
func ChecksumL2(bidsDesc, asksAsc []model.PriceLevel) uint32 {
	var b strings.Builder
	for i := 0; i < len(asksAsc) && i < checksumDepth; i++ {
		b.WriteString(formatChecksumNumber(asksAsc[i].Price))
		b.WriteString(formatChecksumNumber(asksAsc[i].Qty))
	}
	for i := 0; i < len(bidsDesc) && i < checksumDepth; i++ {
		b.WriteString(formatChecksumNumber(bidsDesc[i].Price))
		b.WriteString(formatChecksumNumber(bidsDesc[i].Qty))
	}
	return crc32.ChecksumIEEE([]byte(b.String()))
}

// ChecksumL3 aggregates L3 orders by price into the same top-of-book
// level shape ChecksumL2 consumes, then applies the identical procedure —
// Kraken's level3 channel checksum is defined over aggregated price
// levels, not individual order rows.
func ChecksumL3(bidsByPriceDesc, asksByPriceAsc []priceBucket) uint32 {
	toLevels := func(buckets []priceBucket) []model.PriceLevel {
		out := make([]model.PriceLevel, len(buckets))
		for i, pb := range buckets {
			out[i] = model.PriceLevel{Price: pb.price, Qty: pb.totalQty()}
		}
		return out
	}
	return ChecksumL2(toLevels(bidsByPriceDesc), toLevels(asksByPriceAsc))
}
