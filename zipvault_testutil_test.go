package zipvault

import "context"

// bytesProvider returns a DataProvider that serves data in bufferSize-sized
// windows, the shape every AddEntry call in this package's tests needs.
func bytesProvider(data []byte) DataProvider {
	return func(_ context.Context, position int64, bufferSize int) ([]byte, error) {
		if position >= int64(len(data)) {
			return nil, nil
		}
		end := min(position+int64(bufferSize), int64(len(data)))
		return data[position:end], nil
	}
}

// collectExtract drains Extract into a single byte slice.
func collectExtract(ctx context.Context, a *Archive, e Entry) ([]byte, uint32, error) {
	var out []byte
	crc, err := a.Extract(ctx, e, func(chunk []byte) error {
		out = append(out, chunk...)
		return nil
	})
	return out, crc, err
}
