package recognition

import (
	"fmt"
	"strings"
)

type testPart struct {
	headers []string
	data    string
}

func metadataPart(json string) testPart {
	return testPart{
		headers: []string{`Content-Disposition: form-data; name="metadata"`, "Content-Type: application/json"},
		data:    json,
	}
}

func filePart(index int, contentType, data string) testPart {
	headers := []string{fmt.Sprintf(`Content-Disposition: form-data; name="file_%d"; filename="%d.png"`, index, index)}
	if contentType != "" {
		headers = append(headers, "Content-Type: "+contentType)
	}
	return testPart{headers: headers, data: data}
}

func buildBody(boundary string, parts ...testPart) []byte {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString("--" + boundary + "\r\n")
		for _, h := range p.headers {
			b.WriteString(h + "\r\n")
		}
		b.WriteString("\r\n")
		b.WriteString(p.data)
		b.WriteString("\r\n")
	}
	b.WriteString("--" + boundary + "--\r\n")
	return []byte(b.String())
}

func rawResponse(boundary string, parts ...testPart) RawResponse {
	return RawResponse{
		StatusCode:  200,
		ContentType: "multipart/form-data; boundary=" + boundary,
		Body:        buildBody(boundary, parts...),
	}
}

const twoRecordMetadata = `{"status":"ok","total_objects":2,"results":[` +
	`{"id":1,"detected_class":"bottle","classified_as":"plastic","verdict":"plastik i metal","confidence":0.91,"detection_confidence":0.88,"bbox":[1,2,30,40],"file_index":0},` +
	`{"id":2,"detected_class":"can","classified_as":"metal","verdict":"plastik i metal","confidence":0.5,"detection_confidence":0.25,"bbox":[],"file_index":5}]}`
