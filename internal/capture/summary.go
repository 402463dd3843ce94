package capture

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Summary counts the packets in a capture file. Nothing above the transport
// header is decoded.
type Summary struct {
	LinkType layers.LinkType
	Packets  int
	TCP      int
	UDP      int
	TLS      int // TCP packets to port 443
}

func (s Summary) String() string {
	return fmt.Sprintf("%d packets (%d TCP, %d UDP, %d to port 443), link type %s",
		s.Packets, s.TCP, s.UDP, s.TLS, s.LinkType)
}

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
}

// Summarize reads a pcap or pcapng file and counts its packets.
func Summarize(path string) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	magic, err := br.Peek(4)
	if err != nil {
		return Summary{}, fmt.Errorf("read pcap header: %w", err)
	}

	var (
		r        packetReader
		linkType layers.LinkType
	)
	if magic[0] == 0x0a && magic[1] == 0x0d && magic[2] == 0x0d && magic[3] == 0x0a {
		ng, err := pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			return Summary{}, fmt.Errorf("open pcapng: %w", err)
		}
		r, linkType = ng, ng.LinkType()
	} else {
		pr, err := pcapgo.NewReader(br)
		if err != nil {
			return Summary{}, fmt.Errorf("open pcap: %w", err)
		}
		r, linkType = pr, pr.LinkType()
	}

	sum := Summary{LinkType: linkType}
	for {
		data, _, err := r.ReadPacketData()
		if err == io.EOF {
			break
		}
		if err != nil {
			// tcpdump killed mid-write leaves a truncated last record
			if err == io.ErrUnexpectedEOF {
				break
			}
			return sum, fmt.Errorf("read packet %d: %w", sum.Packets+1, err)
		}
		sum.Packets++

		packet := gopacket.NewPacket(data, linkType, gopacket.DecodeOptions{Lazy: true, NoCopy: true})
		if tcp, ok := packet.Layer(layers.LayerTypeTCP).(*layers.TCP); ok {
			sum.TCP++
			if tcp.DstPort == 443 {
				sum.TLS++
			}
		} else if packet.Layer(layers.LayerTypeUDP) != nil {
			sum.UDP++
		}
	}
	return sum, nil
}
