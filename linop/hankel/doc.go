// Package hankel implements block Hankel operators evaluated through a
// circulant embedding and FFT block convolution.
//
// A Hankel operator with k block rows and l block columns over p×m blocks
// h_0..h_{k+l-2} is embedded in a circulant of length n >= k+l-1 (a power of
// two, after padding odd real sequences to even length). Forward products
// transform each input channel once, multiply by the precomputed generator
// spectra and accumulate one inverse transform per output channel.
//
// Three paths exist:
//
//   - real operator, real input: half-spectrum transforms from gonum's
//     dsp/fourier, parallel over input and then output channels
//   - complex operator: full complex transforms from algo-fft
//   - real operator, complex input: the real generator spectrum is extended
//     by conjugate symmetry and the complex path is used
//
// # Usage
//
//	h, _ := hankel.RealBlocks(n, p, m, data)
//	op, err := hankel.FromSequence(h, (n+1)/2)
//	if err != nil {
//		return err
//	}
//	y, err := op.Apply(x) // x has l·m rows
package hankel
