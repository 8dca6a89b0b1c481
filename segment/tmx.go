package segment

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"
)

// TMX 1.4 rendering of the translation memory for interchange with other
// CAT tools. The renderer is read-only over the segment sequence; tokens
// are not exported.

type tmxFile struct {
	XMLName xml.Name  `xml:"tmx"`
	Version string    `xml:"version,attr"`
	Header  tmxHeader `xml:"header"`
	Body    tmxBody   `xml:"body"`
}

type tmxHeader struct {
	CreationTool        string `xml:"creationtool,attr"`
	CreationToolVersion string `xml:"creationtoolversion,attr"`
	DataType            string `xml:"datatype,attr"`
	SegType             string `xml:"segtype,attr"`
	AdminLang           string `xml:"adminlang,attr"`
	SrcLang             string `xml:"srclang,attr"`
	OTMF                string `xml:"o-tmf,attr"`
}

type tmxTU struct {
	TUID        string    `xml:"tuid,attr"`
	LastUpdated string    `xml:"last_updated,attr,omitempty"`
	Props       []tmxProp `xml:"prop,omitempty"`
	TUVs        []tmxTUV  `xml:"tuv"`
}

type tmxProp struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type tmxTUV struct {
	Lang string `xml:"xml:lang,attr"`
	Seg  string `xml:"seg"`
}

type tmxBody struct {
	TUs []tmxTU `xml:"tu"`
}

// WriteTMX renders segments as a TMX 1.4 document to w.
func WriteTMX(w io.Writer, segments []Segment) error {
	doc := tmxFile{
		Version: "1.4",
		Header: tmxHeader{
			CreationTool:        "konkord",
			CreationToolVersion: "1.0",
			DataType:            "plaintext",
			SegType:             "sentence",
			AdminLang:           "en-us",
			SrcLang:             "source",
			OTMF:                "konkordTMX",
		},
	}

	for _, seg := range segments {
		tu := tmxTU{
			TUID: fmt.Sprintf("%d", seg.ID),
			TUVs: []tmxTUV{
				{Lang: "source", Seg: seg.Source},
				{Lang: "target", Seg: seg.Target},
			},
		}
		if !seg.UpdatedAt.IsZero() {
			tu.LastUpdated = seg.UpdatedAt.UTC().Format(time.RFC3339)
		}
		if seg.ParagraphEnd {
			tu.Props = append(tu.Props, tmxProp{Type: "paragraph-end", Value: "yes"})
		}
		doc.Body.TUs = append(doc.Body.TUs, tu)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}

	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
