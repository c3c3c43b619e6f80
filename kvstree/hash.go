package kvstree

import "encoding/json"

// EncodeValue canonically encodes a value for storage as a FILEREF blob.
// encoding/json already sorts map[string]X keys, which is the only
// ordering ambiguity a JSON-like value can introduce, so no extra
// canonicalization pass is needed (spec §8 property 5, round-trip hash
// determinism).
func EncodeValue(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodeValue decodes a blob previously produced by EncodeValue.
func DecodeValue(data []byte) (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// EncodeDirectory canonically encodes a directory for storage as a DIRREF
// blob.
func EncodeDirectory(d Directory) ([]byte, error) {
	return json.Marshal(d)
}

// DecodeDirectory decodes a blob previously produced by EncodeDirectory.
func DecodeDirectory(data []byte) (Directory, error) {
	var d Directory
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	return d, nil
}

// HashValue encodes and hashes v, returning both the reference and the
// encoded bytes (the caller typically still needs the bytes to flush to
// the content store).
func HashValue(v interface{}) (Ref, []byte, error) {
	enc, err := EncodeValue(v)
	if err != nil {
		return "", nil, err
	}
	ref, err := HashBytes(enc)
	if err != nil {
		return "", nil, err
	}
	return ref, enc, nil
}

// HashDirectory encodes and hashes d, returning both the reference and the
// encoded bytes.
func HashDirectory(d Directory) (Ref, []byte, error) {
	enc, err := EncodeDirectory(d)
	if err != nil {
		return "", nil, err
	}
	ref, err := HashBytes(enc)
	if err != nil {
		return "", nil, err
	}
	return ref, enc, nil
}

// EmptyDirectory is the canonical empty directory, used as the implicit
// root before any commit has run.
var EmptyDirectory = Directory{}
