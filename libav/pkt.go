package astilibav

import (
	"fmt"
	"sync"

	"github.com/asticode/go-astiav"
	astipipeline "github.com/asticode/go-astitranscoder/pipeline"
)

// pktPool recycles packets. Packets are only freed when the pool is closed.
type pktPool struct {
	m  *sync.Mutex // Locks ps
	ps []*astiav.Packet
}

func newPktPool() *pktPool {
	return &pktPool{m: &sync.Mutex{}}
}

func (p *pktPool) get() *astiav.Packet {
	p.m.Lock()
	defer p.m.Unlock()
	if len(p.ps) == 0 {
		return astiav.AllocPacket()
	}
	pkt := p.ps[len(p.ps)-1]
	p.ps = p.ps[:len(p.ps)-1]
	return pkt
}

func (p *pktPool) put(pkt *astiav.Packet) {
	pkt.Unref()
	p.m.Lock()
	defer p.m.Unlock()
	p.ps = append(p.ps, pkt)
}

func (p *pktPool) close() {
	p.m.Lock()
	defer p.m.Unlock()
	for _, pkt := range p.ps {
		pkt.Free()
	}
	p.ps = nil
}

type pktData struct {
	p   *pktPool
	pkt *astiav.Packet
}

// Clone implements the astipipeline.PacketData interface
func (d *pktData) Clone() (astipipeline.PacketData, error) {
	pkt := d.p.get()
	if err := pkt.Ref(d.pkt); err != nil {
		d.p.put(pkt)
		return nil, fmt.Errorf("astilibav: referencing packet failed: %w", err)
	}
	return &pktData{
		p:   d.p,
		pkt: pkt,
	}, nil
}

// Release implements the astipipeline.PacketData interface
func (d *pktData) Release() {
	d.p.put(d.pkt)
}

func (p *pktPool) newPacket(pkt *astiav.Packet) *astipipeline.Packet {
	return &astipipeline.Packet{
		Data:        &pktData{p: p, pkt: pkt},
		DTS:         timestampFromLibav(pkt.Dts()),
		Duration:    pkt.Duration(),
		Key:         pkt.Flags().Has(astiav.PacketFlagKey),
		PTS:         timestampFromLibav(pkt.Pts()),
		Size:        pkt.Size(),
		StreamIndex: pkt.StreamIndex(),
	}
}

// libavPacket returns the backend packet once the pipeline packet properties have been applied to it
func libavPacket(p *astipipeline.Packet) (pkt *astiav.Packet, err error) {
	d, ok := p.Data.(*pktData)
	if !ok {
		err = fmt.Errorf("astilibav: packet payload is a %T, not a libav packet", p.Data)
		return
	}
	pkt = d.pkt
	pkt.SetDts(timestampToLibav(p.DTS))
	pkt.SetDuration(p.Duration)
	pkt.SetPts(timestampToLibav(p.PTS))
	pkt.SetStreamIndex(p.StreamIndex)
	if p.Key {
		pkt.SetFlags(pkt.Flags().Add(astiav.PacketFlagKey))
	} else {
		pkt.SetFlags(pkt.Flags().Del(astiav.PacketFlagKey))
	}
	return
}
