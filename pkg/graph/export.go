package graph

import (
	"encoding/hex"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"lukechampine.com/blake3"
)

// Export formats.
const (
	FormatJSON    = "json"
	FormatGraphML = "graphml"
	FormatGEXF    = "gexf"
)

// FormatExtension returns the file extension of an export format.
func FormatExtension(format string) string {
	switch format {
	case FormatGraphML:
		return "graphml"
	case FormatGEXF:
		return "gexf"
	default:
		return "json"
	}
}

// FormatContentType returns the MIME type of an export format.
func FormatContentType(format string) string {
	switch format {
	case FormatGraphML, FormatGEXF:
		return "application/xml"
	default:
		return "application/json"
	}
}

// Export serializes every node and edge of g in the given format.
func Export(g *Graph, format string) (string, error) {
	switch strings.ToLower(format) {
	case FormatJSON:
		b, err := json.MarshalIndent(g, "", "  ")
		if err != nil {
			return "", err
		}
		return string(b), nil
	case FormatGraphML:
		return marshalXML(toGraphML(g))
	case FormatGEXF:
		return marshalXML(toGEXF(g))
	default:
		return "", invalidParameter("format", format)
	}
}

// Fingerprint is a BLAKE3 digest of the nodes and edges of g. Graphs with
// equal content have equal fingerprints regardless of build time.
func Fingerprint(g *Graph) (string, error) {
	b, err := json.Marshal(struct {
		ProjectID string `json:"project_id"`
		Nodes     []Node `json:"nodes"`
		Edges     []Edge `json:"edges"`
	}{g.ProjectID, g.Nodes, g.Edges})
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func marshalXML(v any) (string, error) {
	b, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return xml.Header + string(b) + "\n", nil
}

type graphML struct {
	XMLName xml.Name     `xml:"graphml"`
	Xmlns   string       `xml:"xmlns,attr"`
	Keys    []graphMLKey `xml:"key"`
	Graph   graphMLGraph `xml:"graph"`
}

type graphMLKey struct {
	ID       string `xml:"id,attr"`
	For      string `xml:"for,attr"`
	AttrName string `xml:"attr.name,attr"`
	AttrType string `xml:"attr.type,attr"`
}

type graphMLGraph struct {
	ID          string        `xml:"id,attr"`
	EdgeDefault string        `xml:"edgedefault,attr"`
	Nodes       []graphMLNode `xml:"node"`
	Edges       []graphMLEdge `xml:"edge"`
}

type graphMLData struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

type graphMLNode struct {
	ID   string        `xml:"id,attr"`
	Data []graphMLData `xml:"data"`
}

type graphMLEdge struct {
	ID     string        `xml:"id,attr"`
	Source string        `xml:"source,attr"`
	Target string        `xml:"target,attr"`
	Data   []graphMLData `xml:"data"`
}

func toGraphML(g *Graph) graphML {
	doc := graphML{
		Xmlns: "http://graphml.graphdrawing.org/xmlns",
		Keys: []graphMLKey{
			{ID: "label", For: "node", AttrName: "label", AttrType: "string"},
			{ID: "entity_type", For: "node", AttrName: "entity_type", AttrType: "string"},
			{ID: "document_count", For: "node", AttrName: "document_count", AttrType: "int"},
			{ID: "degree", For: "node", AttrName: "degree", AttrType: "int"},
			{ID: "relationship_type", For: "edge", AttrName: "relationship_type", AttrType: "string"},
			{ID: "weight", For: "edge", AttrName: "weight", AttrType: "double"},
			{ID: "co_occurrence_count", For: "edge", AttrName: "co_occurrence_count", AttrType: "int"},
		},
		Graph: graphMLGraph{ID: g.ProjectID, EdgeDefault: "undirected"},
	}
	for _, n := range g.Nodes {
		doc.Graph.Nodes = append(doc.Graph.Nodes, graphMLNode{
			ID: n.ID,
			Data: []graphMLData{
				{Key: "label", Value: n.Label},
				{Key: "entity_type", Value: n.EntityType},
				{Key: "document_count", Value: strconv.Itoa(n.DocumentCount)},
				{Key: "degree", Value: strconv.Itoa(n.Degree)},
			},
		})
	}
	for i, e := range g.Edges {
		doc.Graph.Edges = append(doc.Graph.Edges, graphMLEdge{
			ID:     fmt.Sprintf("e%d", i),
			Source: e.Source,
			Target: e.Target,
			Data: []graphMLData{
				{Key: "relationship_type", Value: e.RelationshipType},
				{Key: "weight", Value: strconv.FormatFloat(e.Weight, 'g', -1, 64)},
				{Key: "co_occurrence_count", Value: strconv.Itoa(e.CoOccurrenceCount)},
			},
		})
	}
	return doc
}

type gexf struct {
	XMLName xml.Name  `xml:"gexf"`
	Xmlns   string    `xml:"xmlns,attr"`
	Version string    `xml:"version,attr"`
	Graph   gexfGraph `xml:"graph"`
}

type gexfGraph struct {
	DefaultEdgeType string         `xml:"defaultedgetype,attr"`
	Mode            string         `xml:"mode,attr"`
	Attributes      gexfAttributes `xml:"attributes"`
	Nodes           []gexfNode     `xml:"nodes>node"`
	Edges           []gexfEdge     `xml:"edges>edge"`
}

type gexfAttributes struct {
	Class      string          `xml:"class,attr"`
	Attributes []gexfAttribute `xml:"attribute"`
}

type gexfAttribute struct {
	ID    string `xml:"id,attr"`
	Title string `xml:"title,attr"`
	Type  string `xml:"type,attr"`
}

type gexfAttValue struct {
	For   string `xml:"for,attr"`
	Value string `xml:"value,attr"`
}

type gexfNode struct {
	ID        string         `xml:"id,attr"`
	Label     string         `xml:"label,attr"`
	AttValues []gexfAttValue `xml:"attvalues>attvalue"`
}

type gexfEdge struct {
	ID     string  `xml:"id,attr"`
	Source string  `xml:"source,attr"`
	Target string  `xml:"target,attr"`
	Weight float64 `xml:"weight,attr"`
	Label  string  `xml:"label,attr"`
}

func toGEXF(g *Graph) gexf {
	doc := gexf{
		Xmlns:   "http://gexf.net/1.3",
		Version: "1.3",
		Graph: gexfGraph{
			DefaultEdgeType: "undirected",
			Mode:            "static",
			Attributes: gexfAttributes{
				Class: "node",
				Attributes: []gexfAttribute{
					{ID: "0", Title: "entity_type", Type: "string"},
					{ID: "1", Title: "document_count", Type: "integer"},
					{ID: "2", Title: "degree", Type: "integer"},
				},
			},
		},
	}
	for _, n := range g.Nodes {
		doc.Graph.Nodes = append(doc.Graph.Nodes, gexfNode{
			ID:    n.ID,
			Label: n.Label,
			AttValues: []gexfAttValue{
				{For: "0", Value: n.EntityType},
				{For: "1", Value: strconv.Itoa(n.DocumentCount)},
				{For: "2", Value: strconv.Itoa(n.Degree)},
			},
		})
	}
	for i, e := range g.Edges {
		doc.Graph.Edges = append(doc.Graph.Edges, gexfEdge{
			ID:     strconv.Itoa(i),
			Source: e.Source,
			Target: e.Target,
			Weight: e.Weight,
			Label:  e.RelationshipType,
		})
	}
	return doc
}
