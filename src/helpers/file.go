package helpers

import (
	"fmt"
	"os"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// FileExists checks if a file exists and is not a directory.
func FileExists(filename string, logger *zap.SugaredLogger) bool {
	info, err := os.Stat(filename)
	if err != nil {
		if !os.IsNotExist(err) && logger != nil {
			logger.Warnw("Error checking file for existence", "file", filename, "error", err)
		}
		return false
	}
	return !info.IsDir()
}

// EncodeBSON encodes a document map into BSON.
func EncodeBSON(doc map[string]interface{}) ([]byte, error) {
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("error encoding BSON: %w", err)
	}
	return data, nil
}

// DecodeBSON decodes BSON back into a Go map.
func DecodeBSON(data []byte) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("error decoding BSON: %w", err)
	}
	return doc, nil
}
